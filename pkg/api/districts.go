package api

import (
	"net/http"

	"github.com/platinummonkey/schoolhouse/pkg/apierrors"
	"github.com/platinummonkey/schoolhouse/pkg/bus"
	"github.com/platinummonkey/schoolhouse/pkg/httputil"
	"github.com/platinummonkey/schoolhouse/pkg/users"
)

// createDistrict handles POST /districts and answers with the new id as text
func (s *Server) createDistrict(w http.ResponseWriter, r *http.Request) error {
	var req CreateDistrictRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	id, err := s.newID()
	if err != nil {
		return apierrors.Internal("failed to generate district id", err)
	}
	created, err := bus.Dispatch[string](r.Context(), s.bus, users.CreateDistrict{ID: id, Name: req.Name})
	if err != nil {
		return err
	}
	return httputil.WriteText(w, http.StatusCreated, created)
}

func (s *Server) listDistricts(w http.ResponseWriter, r *http.Request) error {
	districts, err := bus.Dispatch[[]*users.District](r.Context(), s.bus, users.ListDistricts{})
	if err != nil {
		return err
	}
	return httputil.WriteJSON(w, http.StatusOK, districts)
}
