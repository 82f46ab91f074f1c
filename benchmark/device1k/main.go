package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"liyu1981.xyz/greenhouse-relay/pkg/common"
	relayGrpc "liyu1981.xyz/greenhouse-relay/pkg/grpc"
)

var (
	maxDevices   = flag.Int("devices", 1000, "number of simulated devices")
	rounds       = flag.Int("rounds", 3, "poll/ingest rounds per device")
	httpHostPort = flag.String("http", "127.0.0.1:3000", "http host:port of the relay")
	grpcHostPort = flag.String("grpc", "127.0.0.1:10801", "grpc host:port of the relay, empty for http only")
	apiKey       = flag.String("key", common.DefaultAPIKey, "shared api key")
)

var grpcClient relayGrpc.RelayClient

var (
	rnd   = rand.New(rand.NewSource(time.Now().UnixNano()))
	rndMu sync.Mutex
)

func main() {
	flag.Parse()

	deviceIDs := make([]string, *maxDevices)
	for i := 0; i < *maxDevices; i++ {
		deviceIDs[i] = "gh-" + uuid.NewString()[:8]
	}
	fmt.Printf("generated %v device IDs\n", *maxDevices)

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", *httpHostPort))
	if err != nil {
		log.Fatal("Failed to connect to HTTP server:", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatal("HTTP server not available")
	}
	fmt.Printf("http server verified\n")

	if *grpcHostPort != "" {
		conn, err := grpc.NewClient(*grpcHostPort, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			log.Fatal("Failed to connect to gRPC server:", err)
		}
		defer conn.Close()
		grpcClient = relayGrpc.NewRelayClient(conn)
		fmt.Printf("gRPC client created\n")
	}

	var startTime time.Time
	var usedTime time.Duration

	startTime = time.Now()
	wg := sync.WaitGroup{}
	for i := 0; i < *maxDevices; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			setCommand(deviceIDs[i])
		}()
	}
	wg.Wait()
	usedTime = time.Since(startTime)

	fmt.Printf(
		"set commands for %v devices: used time=%v seconds, throughput=%v action/second\n",
		*maxDevices, usedTime.Seconds(), float64(*maxDevices)/usedTime.Seconds(),
	)

	startTime = time.Now()
	wg = sync.WaitGroup{}
	for i := 0; i < *maxDevices; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			for rep := 0; rep < *rounds; rep++ {
				pollCommand(deviceIDs[i])
				postReading(deviceIDs[i])
				time.Sleep(time.Duration(100+rndInt(1000)) * time.Millisecond)
			}
		}()
	}
	wg.Wait()
	usedTime = time.Since(startTime)

	fmt.Printf(
		"ran device loops for %v devices: used time=%v seconds, throughput=%v action/second\n",
		*maxDevices, usedTime.Seconds(), float64(*maxDevices*(*rounds)*2)/usedTime.Seconds(),
	)
}

func rndInt(n int32) int32 {
	rndMu.Lock()
	defer rndMu.Unlock()
	return rnd.Int31n(n)
}

func useHttp() bool {
	return grpcClient == nil || rndInt(2) == 0
}

func rndFloat64(min, max float64, decimal int) float64 {
	rndMu.Lock()
	val := min + rnd.Float64()*(max-min)
	rndMu.Unlock()
	multiplier := math.Pow10(decimal)
	return math.Round(val*multiplier) / multiplier
}

func postJSON(path string, payload map[string]any) {
	jsonData, _ := json.Marshal(payload)
	req, err := http.NewRequest("POST", fmt.Sprintf("http://%s%s", *httpHostPort, path), bytes.NewBuffer(jsonData))
	if err != nil {
		fmt.Printf("\nerror: %v\n", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(common.HeaderAPIKey, *apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("\nerror: %v\n", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("\nresponse status code != 200: %v\n", resp.Status)
	}
}

func setCommand(device string) {
	payload := map[string]any{
		"device":     device,
		"manualPump": int(rndInt(3)) - 1,
		"manualFans": int(rndInt(3)) - 1,
	}

	if useHttp() {
		postJSON("/api/cmd", payload)
		return
	}

	in, _ := structpb.NewStruct(payload)
	if _, err := grpcClient.SetCommand(relayGrpc.WithAPIKey(context.Background(), *apiKey), in); err != nil {
		fmt.Printf("\nerror: %v\n", err)
	}
}

func postReading(device string) {
	payload := map[string]any{
		"device":   device,
		"temp":     rndFloat64(10.0, 40.0, 1),
		"hum":      rndFloat64(20.0, 90.0, 1),
		"soil_pct": int(rndInt(101)),
		"ldr_pct":  int(rndInt(101)),
		"pump":     int(rndInt(2)),
		"fan":      int(rndInt(2)),
	}

	if useHttp() {
		postJSON("/api/ingest", payload)
		return
	}

	in, _ := structpb.NewStruct(payload)
	if _, err := grpcClient.Ingest(relayGrpc.WithAPIKey(context.Background(), *apiKey), in); err != nil {
		fmt.Printf("\nerror: %v\n", err)
	}
}

func pollCommand(device string) {
	if useHttp() {
		resp, err := http.Get(fmt.Sprintf("http://%s/api/cmd?device=%s", *httpHostPort, device))
		if err != nil {
			fmt.Printf("\nerror: %v\n", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			fmt.Printf("\nresponse status code != 200: %v\n", resp.Status)
		}
		return
	}

	in, _ := structpb.NewStruct(map[string]any{"device": device})
	if _, err := grpcClient.GetCommand(context.Background(), in); err != nil {
		fmt.Printf("\nerror: %v\n", err)
	}
}
