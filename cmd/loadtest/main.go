// Load generator for the ripple server. Registers a pool of users, spreads
// them across group conversations, then drives a mixed read/write workload
// against the REST surface.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"time"

	"ripple/internal/models"
)

var (
	baseURL       = flag.String("url", "http://localhost:8080", "server base URL")
	numUsers      = flag.Int("users", 200, "number of simulated users")
	conversations = flag.Int("conversations", 20, "number of group conversations")
	duration      = flag.Duration("duration", 60*time.Second, "simulation length")
	rps           = flag.Int("rps", 1, "requests per second per user")
)

type user struct {
	ID    int64
	Token string
}

type stats struct {
	sync.Mutex
	total     int64
	failed    int64
	latencies []time.Duration
}

func (s *stats) record(latency time.Duration, ok bool) {
	s.Lock()
	defer s.Unlock()
	s.total++
	if !ok {
		s.failed++
		return
	}
	s.latencies = append(s.latencies, latency)
}

func (s *stats) p99() time.Duration {
	s.Lock()
	defer s.Unlock()
	if len(s.latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(s.latencies))
	copy(sorted, s.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func register(i int) (*user, error) {
	payload, _ := json.Marshal(models.RegisterRequest{
		Username: fmt.Sprintf("loadtest_user_%d_%d", time.Now().Unix(), i),
		Password: "testpass123",
	})
	resp, err := http.Post(*baseURL+"/api/auth/register", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("registration failed with status %d", resp.StatusCode)
	}
	var result models.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &user{ID: result.User.ID, Token: result.Token}, nil
}

func authedRequest(u *user, method, path string, body any) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequest(method, *baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+u.Token)
	client := &http.Client{Timeout: 5 * time.Second}
	return client.Do(req)
}

func createConversation(creator *user, members []*user, id int) (int64, error) {
	participants := make([]int64, 0, len(members))
	for _, m := range members {
		participants = append(participants, m.ID)
	}
	resp, err := authedRequest(creator, http.MethodPost, "/api/conversations", models.CreateConversationRequest{
		Name:         fmt.Sprintf("loadtest %d", id),
		Type:         models.ConversationGroup,
		Participants: participants,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("conversation creation failed with status %d", resp.StatusCode)
	}
	var result struct {
		Conversation models.Conversation `json:"conversation"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, err
	}
	return result.Conversation.ID, nil
}

func simulate(u *user, convIDs []int64, st *stats, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(*rps))
	defer ticker.Stop()
	deadline := time.Now().Add(*duration)

	for time.Now().Before(deadline) {
		<-ticker.C
		convID := convIDs[rand.Intn(len(convIDs))]

		var resp *http.Response
		var err error
		start := time.Now()
		if rand.Float32() < 0.5 {
			resp, err = authedRequest(u, http.MethodPost, fmt.Sprintf("/api/messages/%d", convID), models.SendMessageRequest{
				Content: fmt.Sprintf("load test message at %s", time.Now().Format(time.RFC3339Nano)),
				Type:    models.MessageText,
			})
		} else {
			resp, err = authedRequest(u, http.MethodGet, fmt.Sprintf("/api/messages/%d?limit=50", convID), nil)
		}
		elapsed := time.Since(start)

		if err != nil {
			st.record(elapsed, false)
			continue
		}
		ok := resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated
		resp.Body.Close()
		st.record(elapsed, ok)
	}
}

func main() {
	flag.Parse()
	log.Printf("load test: %d users, %d conversations, %v, %d req/s per user", *numUsers, *conversations, *duration, *rps)

	users := make([]*user, 0, *numUsers)
	for i := 0; i < *numUsers; i++ {
		u, err := register(i)
		if err != nil {
			log.Printf("failed to register user %d: %v", i, err)
			continue
		}
		users = append(users, u)
	}
	if len(users) < 2 {
		log.Fatal("not enough users registered, aborting")
	}
	log.Printf("registered %d/%d users", len(users), *numUsers)

	// Spread users across conversations round-robin so every simulated user
	// only targets conversations it actually belongs to.
	membership := make(map[int64][]int64)
	created := 0
	for i := 0; i < *conversations; i++ {
		creator := users[i%len(users)]
		members := []*user{users[(i+1)%len(users)], users[(i+2)%len(users)]}
		id, err := createConversation(creator, members, i)
		if err != nil {
			log.Printf("failed to create conversation %d: %v", i, err)
			continue
		}
		created++
		for _, m := range append(members, creator) {
			membership[m.ID] = append(membership[m.ID], id)
		}
	}
	if created == 0 {
		log.Fatal("no conversations created, aborting")
	}
	log.Printf("created %d conversations", created)

	st := &stats{}
	var wg sync.WaitGroup
	start := time.Now()
	for _, u := range users {
		convIDs := membership[u.ID]
		if len(convIDs) == 0 {
			continue
		}
		wg.Add(1)
		go simulate(u, convIDs, st, &wg)
	}
	wg.Wait()
	elapsed := time.Since(start)

	log.Printf("total requests:  %d", st.total)
	log.Printf("failed requests: %d", st.failed)
	log.Printf("p99 latency:     %v", st.p99())
	log.Printf("throughput:      %.2f req/s", float64(st.total)/elapsed.Seconds())
}
