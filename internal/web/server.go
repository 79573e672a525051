package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fieldsweep/internal/farm"
	"fieldsweep/internal/mission"
	"fieldsweep/internal/perception"
	"fieldsweep/internal/planner"
)

// MissionController is the slice of the mission state machine the API
// needs. Implementations must be safe to call concurrently with the
// control loop.
type MissionController interface {
	Deploy(farmID int, farmName string, b planner.Boundary) error
	Stall() (mission.State, error)
	Abort() error
	Snapshot() mission.Snapshot
}

type FarmRegistry interface {
	List() []farm.Farm
	Get(id int) (farm.Farm, bool)
	Add(nowUTC time.Time, name, location string, b planner.Boundary) (farm.Farm, error)
	Delete(id int) error
}

type FindingsSource interface {
	Snapshot() []perception.Finding
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: msg})
}

// missionErrStatus maps state-machine rejections to HTTP codes.
func missionErrStatus(err error) int {
	switch {
	case errors.Is(err, mission.ErrMissionAlreadyActive):
		return http.StatusConflict
	case errors.Is(err, mission.ErrNoActiveMission):
		return http.StatusConflict
	case errors.Is(err, planner.ErrInvalidBoundary):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func Handler(status *Status, ctl MissionController, farms FarmRegistry, findings FindingsSource, logs *LogBuffer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, status.Snapshot(time.Now().UTC(), ctl.Snapshot()))
	})

	mux.HandleFunc("/api/drone/deploy", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			FarmID int `json:"farm_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid request body")
			return
		}

		f, ok := farms.Get(req.FarmID)
		if !ok {
			writeErr(w, http.StatusNotFound, "unknown farm")
			return
		}
		if err := ctl.Deploy(f.ID, f.Name, f.Boundary); err != nil {
			writeErr(w, missionErrStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, ctl.Snapshot())
	})

	mux.HandleFunc("/api/drone/stall", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next, err := ctl.Stall()
		if err != nil {
			writeErr(w, missionErrStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, struct {
			State string `json:"state"`
		}{State: next.String()})
	})

	mux.HandleFunc("/api/drone/abort", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := ctl.Abort(); err != nil {
			writeErr(w, missionErrStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, ctl.Snapshot())
	})

	mux.HandleFunc("/api/farms", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			list := farms.List()
			writeJSON(w, http.StatusOK, struct {
				Farms []farm.Farm `json:"farms"`
			}{Farms: list})

		case http.MethodPost:
			var req struct {
				Name     string           `json:"name"`
				Location string           `json:"location"`
				Boundary planner.Boundary `json:"boundary"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeErr(w, http.StatusBadRequest, "invalid request body")
				return
			}
			f, err := farms.Add(time.Now().UTC(), req.Name, req.Location, req.Boundary)
			if err != nil {
				writeErr(w, http.StatusBadRequest, err.Error())
				return
			}
			writeJSON(w, http.StatusCreated, f)

		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/farms/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			w.Header().Set("Allow", http.MethodDelete)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/api/farms/"))
		if err != nil {
			writeErr(w, http.StatusBadRequest, "farm id must be an integer")
			return
		}
		if err := farms.Delete(id); err != nil {
			if errors.Is(err, farm.ErrNotFound) {
				writeErr(w, http.StatusNotFound, "unknown farm")
				return
			}
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, struct {
			OK bool `json:"ok"`
		}{OK: true})
	})

	mux.HandleFunc("/api/detections", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		list := []perception.Finding{}
		if findings != nil {
			list = findings.Snapshot()
		}
		writeJSON(w, http.StatusOK, struct {
			Findings []perception.Finding `json:"findings"`
		}{Findings: list})
	})

	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}

	return mux
}

func Serve(ctx context.Context, listenAddr string, status *Status, ctl MissionController, farms FarmRegistry, findings FindingsSource, logs *LogBuffer) error {
	if status == nil {
		status = NewStatus()
	}

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           Handler(status, ctl, farms, findings, logs),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
