// Copyright 2026 Clanwatch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/clanwatch/clanwatch/internal/version"
)

type infoResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type healthResponse struct {
	Healthy bool `json:"healthy"`
}

type accountResponse struct {
	AccountID        string    `json:"accountId"`
	ExternalMemberID string    `json:"externalMemberId"`
	LinkedAt         time.Time `json:"linkedAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *Api) writeJSON(
	w http.ResponseWriter,
	status int,
	data any,
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Error(
			"failed to encode response",
			"error", err,
		)
	}
}

func (a *Api) writeError(
	w http.ResponseWriter,
	status int,
	msg string,
) {
	a.writeJSON(w, status, errorResponse{Error: msg})
}

func (a *Api) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		a.writeError(w, http.StatusNotFound, "not found")
		return
	}
	a.writeJSON(
		w,
		http.StatusOK,
		infoResponse{
			Name:    "clanwatch",
			Version: version.GetVersionString(),
		},
	)
}

func (a *Api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, healthResponse{Healthy: true})
}

func (a *Api) handleLatestPeriod(
	w http.ResponseWriter,
	_ *http.Request,
) {
	snapshot, err := a.history.Latest()
	if err != nil {
		a.logger.Error(
			"failed to read period history",
			"error", err,
		)
		a.writeError(
			w,
			http.StatusInternalServerError,
			"failed to read period history",
		)
		return
	}
	if snapshot == nil {
		a.writeError(
			w,
			http.StatusNotFound,
			"no closed periods recorded",
		)
		return
	}
	a.writeJSON(w, http.StatusOK, snapshot)
}

func (a *Api) handlePeriodAgo(
	w http.ResponseWriter,
	r *http.Request,
) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 0 {
		a.writeError(
			w,
			http.StatusBadRequest,
			"invalid offset",
		)
		return
	}
	snapshot, err := a.history.Ago(n)
	if err != nil {
		a.logger.Error(
			"failed to read period history",
			"error", err,
		)
		a.writeError(
			w,
			http.StatusInternalServerError,
			"failed to read period history",
		)
		return
	}
	if snapshot == nil {
		a.writeError(
			w,
			http.StatusNotFound,
			"no closed period at requested offset",
		)
		return
	}
	a.writeJSON(w, http.StatusOK, snapshot)
}

func (a *Api) handlePeriodByDay(
	w http.ResponseWriter,
	r *http.Request,
) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		a.writeError(
			w,
			http.StatusBadRequest,
			"invalid day index",
		)
		return
	}
	snapshot, err := a.history.ByDayIndex(index)
	if err != nil {
		a.logger.Error(
			"failed to read period history",
			"error", err,
		)
		a.writeError(
			w,
			http.StatusInternalServerError,
			"failed to read period history",
		)
		return
	}
	if snapshot == nil {
		a.writeError(
			w,
			http.StatusNotFound,
			"no closed period with requested day index",
		)
		return
	}
	a.writeJSON(w, http.StatusOK, snapshot)
}

func (a *Api) handleAccounts(
	w http.ResponseWriter,
	r *http.Request,
) {
	accounts, err := a.db.LinkedAccounts(r.Context())
	if err != nil {
		a.logger.Error(
			"failed to list linked accounts",
			"error", err,
		)
		a.writeError(
			w,
			http.StatusInternalServerError,
			"failed to list linked accounts",
		)
		return
	}
	resp := make([]accountResponse, 0, len(accounts))
	for _, account := range accounts {
		resp = append(
			resp,
			accountResponse{
				AccountID:        account.AccountID,
				ExternalMemberID: account.ExternalMemberID,
				LinkedAt:         account.LinkedAt,
			},
		)
	}
	a.writeJSON(w, http.StatusOK, resp)
}
