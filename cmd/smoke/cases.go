// README: Smoke cases: environment checks, sequential allocation, exhaustion, release recency, change propagation, concurrent occupy.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"parkmark/internal/infra"
	"parkmark/internal/modules/lot"
	"parkmark/internal/modules/marker"
	"parkmark/internal/modules/spot"
	"parkmark/internal/types"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusSkip = "SKIP"
)

const (
	smokeLotID = "smoke-lot"
	raceLotID  = "smoke-race"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{cfg: cfg, httpc: &http.Client{Timeout: 10 * time.Second}}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := infra.NewDB(ctx, r.cfg.DSN); err == nil {
			r.db = db
		} else {
			fmt.Printf("db unavailable: %v\n", err)
		}
	}
	if client, err := infra.NewRedis(ctx, r.cfg.RedisAddr); err == nil {
		r.redis = client
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		start := time.Now()
		res := tc.Run(ctx, r)
		if res.Latency == 0 {
			res.Latency = time.Since(start).Round(time.Millisecond)
		}
		results = append(results, res)
		fmt.Printf("%-5s %s (%s)", res.Status, tc.Name, res.Latency)
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	r.cleanup(context.Background())
	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.db == nil {
				return fail("db not configured")
			}
			return pass("")
		}},
		{Name: "Env: Redis connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.redis == nil {
				return Result{Status: StatusSkip, Note: "redis not configured, server uses in-process locks"}
			}
			return pass("")
		}},
		{Name: "Migration: apply (optional)", Run: func(ctx context.Context, r *Runner) Result {
			if !r.cfg.Migrate {
				return Result{Status: StatusSkip, Note: "migrate=false"}
			}
			if r.db == nil {
				return fail("db not configured")
			}
			if err := infra.ApplyMigrations(ctx, r.db, r.cfg.MigrationsDir); err != nil {
				return fail(err.Error())
			}
			return pass("")
		}},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			status, _, err := r.call(ctx, http.MethodGet, "/health")
			if err != nil {
				return fail(err.Error())
			}
			return expect(status, http.StatusOK)
		}},
		{Name: "Seed: lot with capacity 3", Run: func(ctx context.Context, r *Runner) Result {
			return r.seed(ctx, smokeLotID, "S", 3)
		}},
		{Name: "Occupy: labels S01, S02, S03 in order", Run: func(ctx context.Context, r *Runner) Result {
			for _, want := range []string{"S01", "S02", "S03"} {
				sp, err := r.occupy(ctx, smokeLotID)
				if err != nil {
					return fail(err.Error())
				}
				if sp.Label != want {
					return fail(fmt.Sprintf("got %s, want %s", sp.Label, want))
				}
			}
			return pass("")
		}},
		{Name: "Occupy: full lot -> 409, no row written", Run: func(ctx context.Context, r *Runner) Result {
			status, _, err := r.call(ctx, http.MethodPost, "/api/lots/"+smokeLotID+"/occupy")
			if err != nil {
				return fail(err.Error())
			}
			if res := expect(status, http.StatusConflict); res.Status != StatusPass {
				return res
			}
			return r.expectSpotCount(ctx, smokeLotID, 3)
		}},
		{Name: "Markers: availability propagates to /api/lots", Run: func(ctx context.Context, r *Runner) Result {
			return r.waitAvailable(ctx, smokeLotID, 0)
		}},
		{Name: "Release: most recent spot first", Run: func(ctx context.Context, r *Runner) Result {
			res, err := r.release(ctx, smokeLotID)
			if err != nil {
				return fail(err.Error())
			}
			if !res.Released || res.Spot == nil || res.Spot.Label != "S03" {
				return fail(fmt.Sprintf("unexpected release result %+v", res))
			}
			return pass("")
		}},
		{Name: "Occupy: lowest free label reused", Run: func(ctx context.Context, r *Runner) Result {
			sp, err := r.occupy(ctx, smokeLotID)
			if err != nil {
				return fail(err.Error())
			}
			if sp.Label != "S03" {
				return fail("got " + sp.Label)
			}
			return pass("")
		}},
		{Name: "Release: empty lot is a no-op", Run: func(ctx context.Context, r *Runner) Result {
			for i := 0; i < 3; i++ {
				if _, err := r.release(ctx, smokeLotID); err != nil {
					return fail(err.Error())
				}
			}
			res, err := r.release(ctx, smokeLotID)
			if err != nil {
				return fail(err.Error())
			}
			if res.Released {
				return fail("released from an empty lot")
			}
			return r.waitAvailable(ctx, smokeLotID, 3)
		}},
		{Name: "Race: parallel occupy yields distinct labels", Run: func(ctx context.Context, r *Runner) Result {
			n := r.cfg.Concurrency
			if res := r.seed(ctx, raceLotID, "R", n); res.Status != StatusPass {
				return res
			}
			labels := make([]string, n)
			errs := make([]error, n)
			start := make(chan struct{})
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					sp, err := r.occupy(ctx, raceLotID)
					labels[i], errs[i] = sp.Label, err
				}(i)
			}
			close(start)
			wg.Wait()

			seen := map[string]bool{}
			for i := range labels {
				if errs[i] != nil {
					return fail(errs[i].Error())
				}
				if seen[labels[i]] {
					return fail("duplicate label " + labels[i])
				}
				seen[labels[i]] = true
			}
			sort.Strings(labels)
			return pass(fmt.Sprintf("%d labels %s..%s", n, labels[0], labels[n-1]))
		}},
	}
}

func pass(note string) Result { return Result{Status: StatusPass, Note: note} }
func fail(note string) Result { return Result{Status: StatusFail, Note: note} }

func expect(got, want int) Result {
	if got != want {
		return fail(fmt.Sprintf("status=%d, want %d", got, want))
	}
	return pass("")
}

func (r *Runner) seed(ctx context.Context, id, label string, capacity int) Result {
	if r.db == nil {
		return fail("db not configured")
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM parkingspot WHERE parkinglot_id = $1`, id); err != nil {
		return fail(err.Error())
	}
	store := lot.NewStore(r.db)
	err := store.Upsert(ctx, lot.Lot{ID: types.ID(id), Label: label, Capacity: capacity, Longitude: 121.5375, Latitude: 25.0173})
	if err != nil {
		return fail(err.Error())
	}
	return pass("")
}

func (r *Runner) cleanup(ctx context.Context) {
	if r.db == nil {
		return
	}
	store := lot.NewStore(r.db)
	for _, id := range []string{smokeLotID, raceLotID} {
		_ = store.Delete(ctx, types.ID(id))
	}
}

func (r *Runner) expectSpotCount(ctx context.Context, id string, want int) Result {
	labels, err := spot.NewStore(r.db).ListLabels(ctx, types.ID(id))
	if err != nil {
		return fail(err.Error())
	}
	if len(labels) != want {
		return fail(fmt.Sprintf("%d spots, want %d", len(labels), want))
	}
	return pass("")
}

// waitAvailable polls the marker snapshot until the change feed has applied
// the expected availability.
func (r *Runner) waitAvailable(ctx context.Context, id string, want int) Result {
	deadline := time.Now().Add(5 * time.Second)
	last := -1
	for time.Now().Before(deadline) {
		status, body, err := r.call(ctx, http.MethodGet, "/api/lots/"+id)
		if err == nil && status == http.StatusOK {
			var rec marker.Record
			if err := json.Unmarshal(body, &rec); err == nil {
				last = rec.Available
				if rec.Available == want {
					return pass("")
				}
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fail(fmt.Sprintf("available=%d, want %d", last, want))
}

func (r *Runner) occupy(ctx context.Context, id string) (spot.Spot, error) {
	var sp spot.Spot
	status, body, err := r.call(ctx, http.MethodPost, "/api/lots/"+id+"/occupy")
	if err != nil {
		return sp, err
	}
	if status != http.StatusCreated {
		return sp, fmt.Errorf("occupy status=%d body=%s", status, body)
	}
	return sp, json.Unmarshal(body, &sp)
}

func (r *Runner) release(ctx context.Context, id string) (spot.ReleaseResult, error) {
	var res spot.ReleaseResult
	status, body, err := r.call(ctx, http.MethodPost, "/api/lots/"+id+"/release")
	if err != nil {
		return res, err
	}
	if status != http.StatusOK {
		return res, fmt.Errorf("release status=%d body=%s", status, body)
	}
	return res, json.Unmarshal(body, &res)
}

func (r *Runner) call(ctx context.Context, method, path string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, bytes.NewReader(nil))
	if err != nil {
		return 0, nil, err
	}
	if r.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.Token)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, err
}
