package browser

import (
	"os"
	"path/filepath"
	"testing"

	"go-portal-harvester/internal/models"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCookies(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"name":"sid","value":"abc","domain":".portal.example.org","path":"/","expires":1893456000,"httpOnly":true,"secure":true,"sameSite":"Lax"}
	]`), 0644))

	cookies, err := LoadCookies(path)
	require.NoError(t, err)
	require.Len(t, cookies, 1)
	assert.Equal(t, "sid", cookies[0].Name)
	assert.True(t, cookies[0].HTTPOnly)

	missing, err := LoadCookies(filepath.Join(dir, "nope.json"))
	assert.NoError(t, err)
	assert.Empty(t, missing)

	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))
	_, err = LoadCookies(path)
	assert.Error(t, err)
}

func TestSaveCookies_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	in := []models.Cookie{{Name: "sid", Value: "v", Domain: "portal.example.org", Path: "/"}}

	require.NoError(t, SaveCookies(path, in))
	out, err := LoadCookies(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestToPlaywright(t *testing.T) {
	c := toPlaywright(models.Cookie{Name: "sid", Value: "v", Domain: "portal.example.org", SameSite: "Strict", Secure: true})

	assert.Equal(t, "sid", c.Name)
	assert.Equal(t, "/", *c.Path)
	assert.Equal(t, playwright.SameSiteAttributeStrict, c.SameSite)
	assert.True(t, *c.Secure)
	assert.Nil(t, c.Expires)
	assert.Nil(t, c.HttpOnly)
}

func TestFromPlaywright(t *testing.T) {
	c := fromPlaywright(playwright.Cookie{Name: "sid", Value: "v", Domain: "d", Path: "/", SameSite: playwright.SameSiteAttributeLax})
	assert.Equal(t, "Lax", c.SameSite)
}
