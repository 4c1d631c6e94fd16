package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alexflint/go-arg"
	amqp "github.com/rabbitmq/amqp091-go"
)

type PublishCmd struct {
	BusURL    string `arg:"--bus-url,required" help:"AMQP URL for the event bus"`
	TenantID  string `arg:"--tenant-id,required" help:"Tenant id to stamp on published events"`
	EventKind string `arg:"--event-kind" default:"link.created" help:"Event kind to publish"`
	Exchange  string `arg:"--exchange" default:"link.events" help:"Topic exchange to publish to"`
	Rate      int    `arg:"--rate" default:"10" help:"Events per second"`
	Count     int    `arg:"--count" default:"100" help:"Total events to publish"`
}

type BenchCmd struct {
	APIURL      string        `arg:"--api-url,required" help:"hookrelay management API base URL"`
	AdminSecret string        `arg:"--admin-secret,required" help:"Admin secret for subscription registration"`
	BusURL      string        `arg:"--bus-url,required" help:"AMQP URL for the event bus"`
	TenantID    string        `arg:"--tenant-id" default:"bench-tenant" help:"Tenant id to publish under"`
	EventKind   string        `arg:"--event-kind" default:"link.created" help:"Event kind to publish and subscribe to"`
	Exchange    string        `arg:"--exchange" default:"link.events" help:"Topic exchange to publish to"`
	Listen      string        `arg:"--listen" default:":9090" help:"Local listen address for the receiver"`
	EndpointURL string        `arg:"--endpoint-url,required" help:"Publicly reachable URL for the receiver"`
	Rate        int           `arg:"--rate" default:"10" help:"Events per second"`
	Count       int           `arg:"--count" default:"100" help:"Total events to publish"`
	Drain       time.Duration `arg:"--drain" default:"5s" help:"Time to wait after sending for remaining deliveries"`
}

type cliArgs struct {
	Publish *PublishCmd `arg:"subcommand:publish" help:"Publish synthetic domain events onto the bus"`
	Bench   *BenchCmd   `arg:"subcommand:bench" help:"Register a subscription, publish events, and measure delivery latency"`
}

func (cliArgs) Description() string {
	return "hookbench — load-testing tool for the hookrelay webhook dispatch subsystem"
}

func main() {
	var a cliArgs
	p := arg.MustParse(&a)

	switch {
	case a.Publish != nil:
		runPublish(a.Publish)
	case a.Bench != nil:
		runBench(a.Bench)
	default:
		p.WriteUsage(os.Stdout)
		fmt.Println()
		p.WriteHelp(os.Stdout)
		os.Exit(1)
	}
}

func dialBus(url string) (*amqp.Connection, *amqp.Channel) {
	conn, err := amqp.Dial(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error dialing bus: %v\n", err)
		os.Exit(1)
	}
	ch, err := conn.Channel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening channel: %v\n", err)
		os.Exit(1)
	}
	return conn, ch
}

func publishOne(ch *amqp.Channel, exchange, tenantID, upstreamType string) error {
	body, _ := json.Marshal(map[string]any{
		"id":        fmt.Sprintf("evt_%d", time.Now().UnixNano()),
		"type":      upstreamType,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"data": map[string]any{
			"teamId": tenantID,
			"linkId": "hookbench-link",
		},
	})
	return ch.PublishWithContext(context.Background(), exchange, upstreamType, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

func runPublish(cmd *PublishCmd) {
	conn, ch := dialBus(cmd.BusURL)
	defer conn.Close()
	defer ch.Close()

	interval := time.Second / time.Duration(cmd.Rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var sent, errs int64
	start := time.Now()
	for i := 0; i < cmd.Count; i++ {
		<-ticker.C
		if err := publishOne(ch, cmd.Exchange, cmd.TenantID, cmd.EventKind); err != nil {
			errs++
			continue
		}
		sent++
		fmt.Fprintf(os.Stderr, "\rPublished: %d/%d  Errors: %d", sent, cmd.Count, errs)
	}

	elapsed := time.Since(start)
	fmt.Fprintf(os.Stderr, "\nPublish complete: %d/%d sent, %d errors, %.1fs elapsed, %.1f events/sec\n",
		sent, cmd.Count, errs, elapsed.Seconds(), float64(sent)/elapsed.Seconds())
}

func registerSubscription(cmd *BenchCmd) string {
	body, _ := json.Marshal(map[string]any{
		"name":       "hookbench-" + randomSuffix(6),
		"platform":   "generic",
		"target_url": cmd.EndpointURL,
		"event_kind": cmd.EventKind,
	})

	req, err := http.NewRequest(http.MethodPost, cmd.APIURL+"/api/subscriptions", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating registration request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hookrelay-Admin-Secret", cmd.AdminSecret)
	req.Header.Set("X-Hookrelay-Tenant-ID", cmd.TenantID)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error registering subscription: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		fmt.Fprintf(os.Stderr, "subscription registration failed with status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	var sub struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		fmt.Fprintf(os.Stderr, "error decoding subscription response: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Registered subscription (ID: %s)\n", sub.ID)
	return sub.ID
}

func deregisterSubscription(cmd *BenchCmd, id string) {
	req, err := http.NewRequest(http.MethodDelete, cmd.APIURL+"/api/subscriptions/"+id, nil)
	if err != nil {
		return
	}
	req.Header.Set("X-Hookrelay-Admin-Secret", cmd.AdminSecret)
	req.Header.Set("X-Hookrelay-Tenant-ID", cmd.TenantID)
	if resp, err := http.DefaultClient.Do(req); err == nil {
		resp.Body.Close()
	}
}

func runBench(cmd *BenchCmd) {
	var mu sync.Mutex
	var received int64
	var latencies []time.Duration

	mux := http.NewServeMux()
	mux.HandleFunc("POST /", func(w http.ResponseWriter, r *http.Request) {
		receivedAt := time.Now()
		if r.Header.Get("X-Webhook-Signature") == "" {
			http.Error(w, "missing signature header", http.StatusBadRequest)
			return
		}

		body, err := io.ReadAll(r.Body)
		atomic.AddInt64(&received, 1)
		if err != nil {
			w.WriteHeader(http.StatusOK)
			return
		}

		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &envelope); err == nil {
			var payload struct {
				Timestamp string `json:"timestamp"`
			}
			if json.Unmarshal(envelope.Data, &payload) == nil && payload.Timestamp != "" {
				if sentAt, err := time.Parse(time.RFC3339, payload.Timestamp); err == nil {
					mu.Lock()
					latencies = append(latencies, receivedAt.Sub(sentAt))
					mu.Unlock()
				}
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{Addr: cmd.Listen, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "webhook server error: %v\n", err)
		}
	}()
	fmt.Fprintf(os.Stderr, "Receiver listening on %s\n", cmd.Listen)

	subID := registerSubscription(cmd)
	time.Sleep(500 * time.Millisecond) // let the subscription index settle

	conn, ch := dialBus(cmd.BusURL)
	defer conn.Close()
	defer ch.Close()

	interval := time.Second / time.Duration(cmd.Rate)
	ticker := time.NewTicker(interval)
	var sent, errs int64
	sendStart := time.Now()
	for i := 0; i < cmd.Count; i++ {
		<-ticker.C
		if err := publishOne(ch, cmd.Exchange, cmd.TenantID, cmd.EventKind); err != nil {
			errs++
			continue
		}
		sent++
		fmt.Fprintf(os.Stderr, "\rSent: %d/%d  Errors: %d  Received: %d", sent, cmd.Count, errs, atomic.LoadInt64(&received))
	}
	ticker.Stop()
	sendElapsed := time.Since(sendStart)

	fmt.Fprintf(os.Stderr, "\nDraining for %s...\n", cmd.Drain)
	deadline := time.After(cmd.Drain)
	drainTicker := time.NewTicker(500 * time.Millisecond)
	defer drainTicker.Stop()
drainLoop:
	for {
		select {
		case <-deadline:
			break drainLoop
		case <-drainTicker.C:
			if atomic.LoadInt64(&received) >= sent {
				break drainLoop
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
	deregisterSubscription(cmd, subID)

	printSummary(sent, errs, atomic.LoadInt64(&received), sendElapsed, latencies)
}

func printSummary(sent, errs, received int64, elapsed time.Duration, latencies []time.Duration) {
	fmt.Fprintf(os.Stderr, "\n=== Bench Summary ===\n")
	fmt.Fprintf(os.Stderr, "  Sent        : %d (%d errors)\n", sent, errs)
	fmt.Fprintf(os.Stderr, "  Send rate   : %.1f events/sec\n", float64(sent)/elapsed.Seconds())
	fmt.Fprintf(os.Stderr, "  Received    : %d\n", received)
	if sent > 0 {
		fmt.Fprintf(os.Stderr, "  Delivery    : %.1f%%\n", float64(received)/float64(sent)*100)
	}
	if len(latencies) == 0 {
		fmt.Fprintf(os.Stderr, "  Latency     : no data\n")
		return
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	var total time.Duration
	for _, l := range latencies {
		total += l
	}
	mean := total / time.Duration(len(latencies))
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000.0 }
	fmt.Fprintf(os.Stderr, "  Latency min : %.1f ms\n", ms(latencies[0]))
	fmt.Fprintf(os.Stderr, "  Latency max : %.1f ms\n", ms(latencies[len(latencies)-1]))
	fmt.Fprintf(os.Stderr, "  Latency mean: %.1f ms\n", ms(mean))
	fmt.Fprintf(os.Stderr, "  Latency p50 : %.1f ms\n", ms(latencies[len(latencies)*50/100]))
	fmt.Fprintf(os.Stderr, "  Latency p95 : %.1f ms\n", ms(latencies[len(latencies)*95/100]))
	fmt.Fprintf(os.Stderr, "  Latency p99 : %.1f ms\n", ms(latencies[len(latencies)*99/100]))
}

func randomSuffix(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
