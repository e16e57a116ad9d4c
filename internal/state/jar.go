package state

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"sync"
	"time"
)

// CookieStore persists the serialized session cookies between runs.
type CookieStore interface {
	SessionCookies() (string, bool)
	SetSessionCookies(raw string) error
}

// persistedCookie is the durable subset of an http.Cookie. A zero
// Expires means a session-scoped cookie, which is kept until the
// server replaces or clears it.
type persistedCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

// Jar is an http.CookieJar scoped to a single service origin that
// writes cookies through to a CookieStore, so the session established
// by one process is still bound in the next. The session cookie is
// HTTP-only on the wire, but the console is its own user agent and
// must hold it the way a browser holds it across a page reload.
type Jar struct {
	inner http.CookieJar
	store CookieStore
	base  *url.URL

	mu      sync.Mutex
	cookies map[string]persistedCookie
}

// NewJar builds a Jar rooted at base, seeding it with any unexpired
// cookies a previous run persisted. Unreadable persisted state is
// discarded rather than surfaced; the cost is a re-login.
func NewJar(store CookieStore, base *url.URL) (*Jar, error) {
	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	j := &Jar{
		inner:   inner,
		store:   store,
		base:    base,
		cookies: make(map[string]persistedCookie),
	}

	raw, ok := store.SessionCookies()
	if !ok {
		return j, nil
	}
	var saved []persistedCookie
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		return j, nil
	}

	now := time.Now()
	var live []*http.Cookie
	for _, pc := range saved {
		if !pc.Expires.IsZero() && pc.Expires.Before(now) {
			continue
		}
		j.cookies[pc.Name] = pc
		live = append(live, &http.Cookie{
			Name:     pc.Name,
			Value:    pc.Value,
			Path:     pc.Path,
			Domain:   pc.Domain,
			Expires:  pc.Expires,
			Secure:   pc.Secure,
			HttpOnly: pc.HttpOnly,
		})
	}
	if len(live) > 0 {
		inner.SetCookies(base, live)
	}
	return j, nil
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	return j.inner.Cookies(u)
}

// SetCookies records the cookies in memory and writes the surviving
// set through to the store. Persistence is best effort; a write
// failure leaves the in-memory jar intact for the current process.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.inner.SetCookies(u, cookies)

	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()
	for _, c := range cookies {
		// MaxAge < 0 and a past Expires are both deletions.
		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(now)) {
			delete(j.cookies, c.Name)
			continue
		}
		expires := c.Expires
		if c.MaxAge > 0 {
			expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}
		j.cookies[c.Name] = persistedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
	}

	list := make([]persistedCookie, 0, len(j.cookies))
	for _, pc := range j.cookies {
		list = append(list, pc)
	}
	sort.Slice(list, func(a, b int) bool { return list[a].Name < list[b].Name })

	raw, err := json.Marshal(list)
	if err != nil {
		return
	}
	_ = j.store.SetSessionCookies(string(raw))
}
