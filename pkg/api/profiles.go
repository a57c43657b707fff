package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/entrhq/relay/pkg/profiles"
)

// profileView is the wire form of a profile.
type profileView struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	IsLoggedIn bool       `json:"is_logged_in"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func viewOfProfile(p *profiles.Profile) profileView {
	view := profileView{
		ID:         p.ID,
		Name:       p.Name,
		IsLoggedIn: p.IsLoggedIn,
		CreatedAt:  p.CreatedAt,
	}
	if !p.LastUsedAt.IsZero() {
		last := p.LastUsedAt
		view.LastUsedAt = &last
	}
	return view
}

type upsertProfileRequest struct {
	Name string `json:"name"`
}

type loggedInRequest struct {
	LoggedIn bool `json:"logged_in"`
}

// ListProfiles returns all profiles, most recently used first.
func (h *Handler) ListProfiles(c echo.Context) error {
	list, err := h.profiles.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fail(err))
	}
	views := make([]profileView, len(list))
	for i, p := range list {
		views[i] = viewOfProfile(p)
	}
	return c.JSON(http.StatusOK, ok(views))
}

// UpsertProfile creates the profile or renames an existing one.
func (h *Handler) UpsertProfile(c echo.Context) error {
	var req upsertProfileRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, failMsg("invalid request body"))
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, failMsg("name is required"))
	}

	id := c.Param("profile_id")
	if err := h.profiles.Upsert(c.Request().Context(), &profiles.Profile{ID: id, Name: req.Name}); err != nil {
		return c.JSON(http.StatusInternalServerError, fail(err))
	}

	p, err := h.profiles.Get(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fail(err))
	}
	return c.JSON(http.StatusOK, ok(viewOfProfile(p)))
}

// SetProfileLoggedIn records whether the profile's browser session is
// authenticated. Hosts call this after a login run completes.
func (h *Handler) SetProfileLoggedIn(c echo.Context) error {
	var req loggedInRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, failMsg("invalid request body"))
	}

	err := h.profiles.SetLoggedIn(c.Request().Context(), c.Param("profile_id"), req.LoggedIn)
	if err != nil {
		if errors.Is(err, profiles.ErrProfileNotFound) {
			return c.JSON(http.StatusNotFound, fail(err))
		}
		return c.JSON(http.StatusInternalServerError, fail(err))
	}
	return c.JSON(http.StatusOK, ok(nil))
}

// DeleteProfile removes a profile. Its browser session, if any, is untouched;
// the idle sweep reclaims it.
func (h *Handler) DeleteProfile(c echo.Context) error {
	err := h.profiles.Delete(c.Request().Context(), c.Param("profile_id"))
	if err != nil {
		if errors.Is(err, profiles.ErrProfileNotFound) {
			return c.JSON(http.StatusNotFound, fail(err))
		}
		return c.JSON(http.StatusInternalServerError, fail(err))
	}
	return c.JSON(http.StatusOK, ok(nil))
}
