package api

import (
	"net/http"

	"github.com/platinummonkey/schoolhouse/pkg/bus"
	"github.com/platinummonkey/schoolhouse/pkg/httputil"
	"github.com/platinummonkey/schoolhouse/pkg/users"
)

// setPassword completes sign-up of a pending user. The route is public; the
// user id in the path comes from the invitation link.
func (s *Server) setPassword(w http.ResponseWriter, r *http.Request) error {
	userID, err := httputil.ParsePathString(r, "userId")
	if err != nil {
		return err
	}
	var req SetPasswordRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	if _, err := bus.Dispatch[bus.None](r.Context(), s.bus, users.SetPassword{UserID: userID, Password: req.Password}); err != nil {
		return err
	}
	httputil.WriteCreated(w)
	return nil
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) error {
	var req ResetPasswordRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	if _, err := bus.Dispatch[bus.None](r.Context(), s.bus, users.ResetPassword{
		Username: req.Username,
		Code:     req.Code,
		Password: req.Password,
	}); err != nil {
		return err
	}
	httputil.WriteCreated(w)
	return nil
}
