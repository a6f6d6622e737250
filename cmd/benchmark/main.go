package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	accounts    int
	password    string
)

// Counters
var (
	totalRequests uint64
	success200    uint64
	fail422       uint64 // Insufficient balance
	failOther     uint64
)

type session struct {
	userID string
	token  string
}

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&accounts, "accounts", 100, "Number of seeded bench accounts to use")
	flag.StringVar(&password, "password", "bench-secret", "Password shared by seeded bench accounts")
}

func main() {
	flag.Parse()
	if accounts < 2 {
		log.Fatal("-accounts must be at least 2: a transfer needs distinct sender and receiver")
	}
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	sessions := login(accounts)
	log.Printf("Authenticated %d accounts.", len(sessions))

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, sessions)
	}
	wg.Wait()

	printResults(time.Since(start))
}

func login(n int) []session {
	client := &http.Client{Timeout: 10 * time.Second}
	sessions := make([]session, 0, n)
	for i := 0; i < n; i++ {
		payload := map[string]string{
			"email":    fmt.Sprintf("bench-%04d@pontos.local", i),
			"password": password,
		}
		body, _ := json.Marshal(payload)
		resp, err := client.Post(targetURL+"/api/v1/auth/login", "application/json", bytes.NewBuffer(body))
		if err != nil {
			log.Fatalf("login request failed: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			log.Fatalf("login for account %d returned %d; run the seeder first", i, resp.StatusCode)
		}
		var lr struct {
			Token string `json:"token"`
			User  struct {
				ID string `json:"id"`
			} `json:"user"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
			log.Fatalf("login decode failed: %v", err)
		}
		resp.Body.Close()
		sessions = append(sessions, session{userID: lr.User.ID, token: lr.Token})
	}
	return sessions
}

func worker(wg *sync.WaitGroup, start time.Time, sessions []session) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for time.Since(start) < duration {
		sender, receiver := pickPair(rng, sessions)

		payload := map[string]interface{}{
			"receiverId":  receiver.userID,
			"amount":      int64(100),
			"description": "bench",
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest("POST", targetURL+"/api/v1/points/transfer", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+sender.token)

		resp, err := client.Do(req)
		record(resp, err)
		if resp != nil {
			resp.Body.Close()
		}
	}
}

// record counts one attempt. Transport failures count toward the total as
// well, so the throughput and reject-rate denominators agree.
func record(resp *http.Response, err error) {
	atomic.AddUint64(&totalRequests, 1)
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return
	}
	switch resp.StatusCode {
	case http.StatusOK:
		atomic.AddUint64(&success200, 1)
	case http.StatusUnprocessableEntity:
		atomic.AddUint64(&fail422, 1)
	default:
		atomic.AddUint64(&failOther, 1)
	}
}

func pickPair(rng *rand.Rand, sessions []session) (session, session) {
	n := len(sessions)
	if workload == "hotspot" && n >= 2 {
		// Hotspot: 90% of traffic bounces between the first two accounts.
		if rng.Float32() < 0.90 {
			if rng.Float32() < 0.5 {
				return sessions[0], sessions[1]
			}
			return sessions[1], sessions[0]
		}
	}
	a := rng.Intn(n)
	b := rng.Intn(n)
	for a == b {
		b = rng.Intn(n)
	}
	return sessions[a], sessions[b]
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	ok := atomic.LoadUint64(&success200)
	insufficient := atomic.LoadUint64(&fail422)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	var rejectRate float64
	if total > 0 {
		rejectRate = float64(insufficient) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":             workload,
		"duration_sec":         d.Seconds(),
		"total_requests":       total,
		"throughput_tps":       tps,
		"success":              ok,
		"insufficient_balance": insufficient,
		"reject_rate_pct":      rejectRate,
		"errors":               fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("could not write %s: %v", filename, err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
