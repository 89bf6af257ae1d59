package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/apr/internal/adapters/http/api"
	"github.com/okian/apr/internal/adapters/repository"
	"github.com/okian/apr/internal/domain/apr"
	"github.com/okian/apr/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// mockDependencies answers like the batch service: even ids are invalid,
// ids in broken fail decoding and the rest get 5.0.
type mockDependencies struct {
	broken   map[model.UserID]bool
	runCalls int
	lastMode model.Mode
	lastIDs  []model.UserID
	history  []model.Outcome
	stats    map[string]interface{}
}

func (m *mockDependencies) ComputeAPR(_ context.Context, id model.UserID) (model.APR, error) {
	if err := apr.ValidateUser(id); err != nil {
		return 0, err
	}
	if m.broken[id] {
		return 0, fmt.Errorf("%w: user %d", apr.ErrDecodeFailure, id)
	}
	if id == 13 {
		return 0, fmt.Errorf("%w: experian: missing host", apr.ErrBadEndpoint)
	}
	return 5.0, nil
}

func (m *mockDependencies) Run(ctx context.Context, mode model.Mode, ids []model.UserID) (model.Outcome, error) {
	m.runCalls++
	m.lastMode = mode
	m.lastIDs = ids
	out := model.Outcome{
		BatchID:  "b-1",
		Mode:     mode,
		APRs:     map[model.UserID]model.APR{},
		Duration: 12 * time.Millisecond,
	}
	for _, id := range model.UniqueUserIDs(ids) {
		rate, err := m.ComputeAPR(ctx, id)
		if err != nil {
			out.Failed = append(out.Failed, id)
			continue
		}
		out.APRs[id] = rate
	}
	m.history = append(m.history, out)
	return out, nil
}

func (m *mockDependencies) Batch(_ context.Context, batchID string) (model.Outcome, error) {
	for _, out := range m.history {
		if out.BatchID == batchID {
			return out, nil
		}
	}
	return model.Outcome{}, fmt.Errorf("%w: %s", repository.ErrNotFound, batchID)
}

func (m *mockDependencies) RecentBatches(_ context.Context, n int) ([]model.Outcome, error) {
	var out []model.Outcome
	for i := len(m.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.history[i])
	}
	return out, nil
}

func (m *mockDependencies) GetStats() map[string]interface{} {
	return m.stats
}

func newMux(deps *mockDependencies, maxBatchSize int) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, maxBatchSize).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func errorCode(w *httptest.ResponseRecorder) string {
	var resp struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return resp.Code
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDependencies{stats: map[string]interface{}{"batches": 3}}
		mux := newMux(deps, 10)

		Convey("When requesting the health endpoint", func() {
			w := do(mux, http.MethodGet, "/healthz", "")

			Convey("Then it serves the metrics registry", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When requesting stats", func() {
			w := do(mux, http.MethodGet, "/stats", "")

			Convey("Then it returns the provider's stats as JSON", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldContainSubstring, "application/json")
				var stats map[string]interface{}
				So(json.Unmarshal(w.Body.Bytes(), &stats), ShouldBeNil)
				So(stats["batches"], ShouldEqual, float64(3))
			})
		})

		Convey("When using the wrong method", func() {
			w := do(mux, http.MethodPost, "/apr/1", "")

			Convey("Then the router rejects it", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			})
		})

		Convey("When requesting an unknown route", func() {
			w := do(mux, http.MethodGet, "/leaderboard", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestAPRHandler(t *testing.T) {
	Convey("Given the APR endpoint", t, func() {
		deps := &mockDependencies{broken: map[model.UserID]bool{5: true}}
		mux := newMux(deps, 10)

		Convey("When the user is valid", func() {
			w := do(mux, http.MethodGet, "/apr/1", "")

			Convey("Then the APR is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var resp struct {
					UserID int     `json:"user_id"`
					APR    float64 `json:"apr"`
				}
				So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
				So(resp.UserID, ShouldEqual, 1)
				So(resp.APR, ShouldEqual, 5.0)
			})
		})

		Convey("When the id is not a number", func() {
			w := do(mux, http.MethodGet, "/apr/abc", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(errorCode(w), ShouldEqual, "bad_request")
		})

		Convey("When the user is even", func() {
			w := do(mux, http.MethodGet, "/apr/2", "")
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
			So(errorCode(w), ShouldEqual, "invalid_user")
		})

		Convey("When a provider payload is malformed", func() {
			w := do(mux, http.MethodGet, "/apr/5", "")
			So(w.Code, ShouldEqual, http.StatusBadGateway)
			So(errorCode(w), ShouldEqual, "decode_failure")
		})

		Convey("When a provider endpoint cannot be built", func() {
			w := do(mux, http.MethodGet, "/apr/13", "")
			So(w.Code, ShouldEqual, http.StatusBadGateway)
			So(errorCode(w), ShouldEqual, "bad_endpoint")
		})

		Convey("When the id is negative and odd", func() {
			w := do(mux, http.MethodGet, "/apr/-3", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestBatchesHandler(t *testing.T) {
	Convey("Given the batches endpoint", t, func() {
		deps := &mockDependencies{broken: map[model.UserID]bool{5: true}}
		mux := newMux(deps, 5)

		Convey("When posting the example batch", func() {
			w := do(mux, http.MethodPost, "/batches", `{"user_ids":[1,2,3,4],"mode":"sequential"}`)

			Convey("Then the outcome is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var resp struct {
					BatchID       string             `json:"batch_id"`
					Mode          string             `json:"mode"`
					APRs          map[string]float64 `json:"aprs"`
					FailedUserIDs []int              `json:"failed_user_ids"`
					DurationMs    int64              `json:"duration_ms"`
				}
				So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
				So(resp.BatchID, ShouldEqual, "b-1")
				So(resp.Mode, ShouldEqual, "sequential")
				So(resp.APRs, ShouldResemble, map[string]float64{"1": 5.0, "3": 5.0})
				So(resp.FailedUserIDs, ShouldResemble, []int{2, 4})
				So(resp.DurationMs, ShouldEqual, int64(12))
			})
		})

		Convey("When the mode is omitted", func() {
			w := do(mux, http.MethodPost, "/batches", `{"user_ids":[1,3]}`)

			Convey("Then the batch runs concurrently and failed ids is an empty list", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastMode, ShouldEqual, model.ModeConcurrent)
				So(w.Body.String(), ShouldContainSubstring, `"failed_user_ids":[]`)
			})
		})

		Convey("When the body is not JSON", func() {
			w := do(mux, http.MethodPost, "/batches", `not json`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(deps.runCalls, ShouldEqual, 0)
		})

		Convey("When no ids are given", func() {
			w := do(mux, http.MethodPost, "/batches", `{"user_ids":[]}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(deps.runCalls, ShouldEqual, 0)
		})

		Convey("When the mode is unknown", func() {
			w := do(mux, http.MethodPost, "/batches", `{"user_ids":[1],"mode":"parallel"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(errorCode(w), ShouldEqual, "bad_request")
		})

		Convey("When the batch exceeds the size limit", func() {
			w := do(mux, http.MethodPost, "/batches", `{"user_ids":[1,2,3,4,5,6]}`)

			Convey("Then it is rejected before running", func() {
				So(w.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
				So(errorCode(w), ShouldEqual, "batch_too_large")
				So(deps.runCalls, ShouldEqual, 0)
			})
		})
	})
}

func TestBatchHistoryHandlers(t *testing.T) {
	Convey("Given a server that already ran one batch", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps, 10)
		So(do(mux, http.MethodPost, "/batches", `{"user_ids":[1,2]}`).Code, ShouldEqual, http.StatusOK)

		Convey("When fetching it by id", func() {
			w := do(mux, http.MethodGet, "/batches/b-1", "")

			Convey("Then the stored outcome is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"failed_user_ids":[2]`)
			})
		})

		Convey("When fetching an unknown id", func() {
			w := do(mux, http.MethodGet, "/batches/nope", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(errorCode(w), ShouldEqual, "not_found")
		})

		Convey("When listing recent batches", func() {
			w := do(mux, http.MethodGet, "/batches?limit=5", "")

			Convey("Then a JSON array is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var list []map[string]interface{}
				So(json.Unmarshal(w.Body.Bytes(), &list), ShouldBeNil)
				So(list, ShouldHaveLength, 1)
				So(list[0]["batch_id"], ShouldEqual, "b-1")
			})
		})

		Convey("When the limit is out of range", func() {
			for _, limit := range []string{"0", "-1", "abc", "1000"} {
				w := do(mux, http.MethodGet, "/batches?limit="+limit, "")
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
		})
	})
}
