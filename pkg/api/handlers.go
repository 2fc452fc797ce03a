package api

import (
	"net/http"

	"github.com/platinummonkey/schoolhouse/pkg/apierrors"
	"github.com/platinummonkey/schoolhouse/pkg/auth"
	"github.com/platinummonkey/schoolhouse/pkg/bus"
	"github.com/platinummonkey/schoolhouse/pkg/httputil"
	"github.com/platinummonkey/schoolhouse/pkg/rbac"
	"github.com/platinummonkey/schoolhouse/pkg/users"
)

func notFound(r *http.Request) error {
	return apierrors.NotFoundf("no route for %s %s", r.Method, r.URL.Path)
}

// caller returns the identity the authenticate guard attached
func caller(r *http.Request) (auth.Identity, error) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		return auth.Identity{}, apierrors.Unauthenticated("authentication required")
	}
	return identity, nil
}

// createUser handles POST /users and answers with the new id as text
func (s *Server) createUser(w http.ResponseWriter, r *http.Request) error {
	identity, err := caller(r)
	if err != nil {
		return err
	}

	var req CreateUserRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	role, err := rbac.ParseRole(req.Role)
	if err != nil {
		return apierrors.Validationf("unknown role %q", req.Role)
	}

	id, err := s.newID()
	if err != nil {
		return apierrors.Internal("failed to generate user id", err)
	}

	created, err := bus.Dispatch[string](r.Context(), s.bus, users.CreateUser{
		ID:       id,
		Email:    req.Email,
		Name:     req.Name,
		Role:     role,
		SchoolID: req.SchoolID,
		Caller:   identity,
	})
	if err != nil {
		return err
	}
	return httputil.WriteText(w, http.StatusCreated, created)
}

func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) error {
	identity, err := caller(r)
	if err != nil {
		return err
	}
	user, err := bus.Dispatch[users.UserReadModel](r.Context(), s.bus, users.GetUser{Caller: identity})
	if err != nil {
		return err
	}
	return httputil.WriteJSON(w, http.StatusOK, user)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) error {
	identity, err := caller(r)
	if err != nil {
		return err
	}
	userID, err := httputil.ParsePathString(r, "userId")
	if err != nil {
		return err
	}
	user, err := bus.Dispatch[users.UserReadModel](r.Context(), s.bus, users.GetUser{UserID: userID, Caller: identity})
	if err != nil {
		return err
	}
	return httputil.WriteJSON(w, http.StatusOK, user)
}

// listUsers handles GET /users?roles=&districtId=&status=&sort=&page=&limit=
func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) error {
	identity, err := caller(r)
	if err != nil {
		return err
	}
	filter, err := parseFilter(r)
	if err != nil {
		return err
	}
	page, err := bus.Dispatch[users.Page](r.Context(), s.bus, users.GetUsers{Filter: filter, Caller: identity})
	if err != nil {
		return err
	}
	return httputil.WriteJSON(w, http.StatusOK, page)
}

func parseFilter(r *http.Request) (users.Filter, error) {
	var filter users.Filter

	for _, raw := range httputil.ParseQueryList(r, "roles") {
		role, err := rbac.ParseRole(raw)
		if err != nil {
			return filter, apierrors.Validationf("unknown role %q", raw)
		}
		filter.Roles = append(filter.Roles, role)
	}

	filter.DistrictID = httputil.ParseQueryString(r, "districtId", "")

	if raw := httputil.ParseQueryString(r, "status", ""); raw != "" {
		status, err := auth.ParseAccountStatus(raw)
		if err != nil {
			return filter, apierrors.Validationf("unknown status %q", raw)
		}
		filter.Status = status
	}

	if raw := httputil.ParseQueryString(r, "sort", ""); raw != "" {
		sort, err := users.ParseSort(raw)
		if err != nil {
			return filter, err
		}
		filter.Sort = sort
	}

	var err error
	if filter.Page, err = httputil.ParseQueryInt(r, "page", users.DefaultPage); err != nil {
		return filter, err
	}
	if filter.Limit, err = httputil.ParseQueryInt(r, "limit", users.DefaultLimit); err != nil {
		return filter, err
	}
	return filter, nil
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) error {
	identity, err := caller(r)
	if err != nil {
		return err
	}
	userID, err := httputil.ParsePathString(r, "userId")
	if err != nil {
		return err
	}

	var req UpdateUserRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}

	cmd := users.UpdateUser{
		UserID:   userID,
		Name:     req.Name,
		Email:    req.Email,
		SchoolID: req.SchoolID,
		Caller:   identity,
	}
	if req.Role != nil {
		role, err := rbac.ParseRole(*req.Role)
		if err != nil {
			return apierrors.Validationf("unknown role %q", *req.Role)
		}
		cmd.Role = &role
	}
	if req.Status != nil {
		status, err := auth.ParseAccountStatus(*req.Status)
		if err != nil {
			return apierrors.Validationf("unknown status %q", *req.Status)
		}
		cmd.Status = &status
	}

	if _, err := bus.Dispatch[bus.None](r.Context(), s.bus, cmd); err != nil {
		return err
	}
	httputil.WriteNoContent(w)
	return nil
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) error {
	identity, err := caller(r)
	if err != nil {
		return err
	}
	userID, err := httputil.ParsePathString(r, "userId")
	if err != nil {
		return err
	}
	if _, err := bus.Dispatch[bus.None](r.Context(), s.bus, users.DeleteUser{UserID: userID, Caller: identity}); err != nil {
		return err
	}
	httputil.WriteNoContent(w)
	return nil
}

// selectDistrict moves the calling SA into another district
func (s *Server) selectDistrict(w http.ResponseWriter, r *http.Request) error {
	identity, err := caller(r)
	if err != nil {
		return err
	}
	var req SelectDistrictRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	if _, err := bus.Dispatch[bus.None](r.Context(), s.bus, users.SelectDistrict{DistrictID: req.DistrictID, Caller: identity}); err != nil {
		return err
	}
	httputil.WriteCreated(w)
	return nil
}
