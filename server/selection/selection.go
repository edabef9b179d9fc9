// Package selection remembers which business and restaurant the dashboard
// is looking at.
package selection

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	CookieBusiness   = "business"
	CookieRestaurant = "restaurant"

	DefaultMaxAge = 7 * 24 * time.Hour
)

// Selection holds numeric ids as strings; empty means unselected.
type Selection struct {
	BusinessID   string `json:"businessId,omitempty"`
	RestaurantID string `json:"restaurantId,omitempty"`
}

func (s Selection) Empty() bool {
	return s.BusinessID == "" && s.RestaurantID == ""
}

// Parse reads /business/{id}[/restaurant/{id}] from a path. A non-numeric
// business id yields nothing; a non-numeric restaurant id keeps the business.
func Parse(path string) Selection {
	segments := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	if len(segments) < 2 || segments[0] != "business" || !numeric(segments[1]) {
		return Selection{}
	}

	sel := Selection{BusinessID: segments[1]}
	if len(segments) >= 4 && segments[2] == "restaurant" && numeric(segments[3]) {
		sel.RestaurantID = segments[3]
	}
	return sel
}

// Resolve prefers ids in the path and falls back to the cookies for
// whatever the path leaves out.
func Resolve(r *http.Request) Selection {
	sel := Parse(r.URL.Path)
	if sel.BusinessID != "" && sel.RestaurantID != "" {
		return sel
	}
	if sel.BusinessID == "" {
		sel.BusinessID = cookieValue(r, CookieBusiness)
	}
	sel.RestaurantID = cookieValue(r, CookieRestaurant)
	return sel
}

// Remember writes the ids found in the request path to the selection
// cookies. Nothing is written for paths without a business.
func Remember(w http.ResponseWriter, r *http.Request, maxAge time.Duration, secure bool) Selection {
	sel := Parse(r.URL.Path)
	if sel.BusinessID == "" {
		return sel
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	setCookie(w, CookieBusiness, sel.BusinessID, maxAge, secure)
	if sel.RestaurantID != "" {
		setCookie(w, CookieRestaurant, sel.RestaurantID, maxAge, secure)
	}
	return sel
}

// Forget expires both selection cookies.
func Forget(w http.ResponseWriter, secure bool) {
	setCookie(w, CookieBusiness, "", -1, secure)
	setCookie(w, CookieRestaurant, "", -1, secure)
}

func setCookie(w http.ResponseWriter, name, value string, maxAge time.Duration, secure bool) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge < 0 {
		c.MaxAge = -1
	} else {
		c.MaxAge = int(maxAge.Seconds())
		c.Expires = time.Now().Add(maxAge)
	}
	http.SetCookie(w, c)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil || !numeric(c.Value) {
		return ""
	}
	return c.Value
}

func numeric(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}
