package selection_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/go-dashboard-auth/server/selection"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		path string
		want selection.Selection
	}{
		{"/", selection.Selection{}},
		{"", selection.Selection{}},
		{"/businesses", selection.Selection{}},
		{"/business", selection.Selection{}},
		{"/business/abc", selection.Selection{}},
		{"/business/12", selection.Selection{BusinessID: "12"}},
		{"/business/12/", selection.Selection{BusinessID: "12"}},
		{"/business/12/menus", selection.Selection{BusinessID: "12"}},
		{"/business/12/restaurant", selection.Selection{BusinessID: "12"}},
		{"/business/12/restaurant/x", selection.Selection{BusinessID: "12"}},
		{"/business/12/restaurant/7", selection.Selection{BusinessID: "12", RestaurantID: "7"}},
		{"/business/12/restaurant/7/tables", selection.Selection{BusinessID: "12", RestaurantID: "7"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			require.Equal(t, tt.want, selection.Parse(tt.path))
		})
	}
}

func TestResolve(t *testing.T) {
	withCookies := func(path string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		r.AddCookie(&http.Cookie{Name: selection.CookieBusiness, Value: "3"})
		r.AddCookie(&http.Cookie{Name: selection.CookieRestaurant, Value: "9"})
		return r
	}

	t.Run("path wins when complete", func(t *testing.T) {
		sel := selection.Resolve(withCookies("/business/1/restaurant/2"))
		require.Equal(t, selection.Selection{BusinessID: "1", RestaurantID: "2"}, sel)
	})

	t.Run("restaurant from cookie", func(t *testing.T) {
		sel := selection.Resolve(withCookies("/business/1"))
		require.Equal(t, selection.Selection{BusinessID: "1", RestaurantID: "9"}, sel)
	})

	t.Run("both from cookies", func(t *testing.T) {
		sel := selection.Resolve(withCookies("/menus"))
		require.Equal(t, selection.Selection{BusinessID: "3", RestaurantID: "9"}, sel)
	})

	t.Run("nothing anywhere", func(t *testing.T) {
		sel := selection.Resolve(httptest.NewRequest(http.MethodGet, "/menus", nil))
		require.True(t, sel.Empty())
	})
}

func TestRemember(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/business/5/restaurant/6/tables", nil)

	sel := selection.Remember(w, r, 0, true)
	require.Equal(t, "5", sel.BusinessID)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 2)
	for _, c := range cookies {
		require.Equal(t, "/", c.Path)
		require.True(t, c.Secure)
		require.False(t, c.HttpOnly, "the dashboard reads these client side")
		require.Equal(t, http.SameSiteLaxMode, c.SameSite)
		require.Equal(t, int((7 * 24 * time.Hour).Seconds()), c.MaxAge)
	}
	require.Equal(t, selection.CookieBusiness, cookies[0].Name)
	require.Equal(t, "5", cookies[0].Value)
	require.Equal(t, "6", cookies[1].Value)

	t.Run("no business in path", func(t *testing.T) {
		w := httptest.NewRecorder()
		selection.Remember(w, httptest.NewRequest(http.MethodGet, "/menus", nil), time.Hour, false)
		require.Empty(t, w.Result().Cookies())
	})
}
