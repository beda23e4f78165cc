package main

import (
	"bufio"
	"log"
	"os"
	"strings"

	"metabattery/internal/ipc"
)

// Warms the metadata store from a newline-separated list of IMDb IDs.
// Usage: warm_cache <socket_path> <ids_file>
//
// Each ID is fetched through the running service so the normal
// classification, merge, and season handling apply.
func main() {
	if len(os.Args) < 3 {
		log.Fatal("Usage: warm_cache <socket_path> <ids_file>")
	}
	socketPath := os.Args[1]
	idsPath := os.Args[2]

	file, err := os.Open(idsPath)
	if err != nil {
		log.Fatalf("open ids file: %v", err)
	}
	defer file.Close()

	client, err := ipc.Dial(socketPath)
	if err != nil {
		log.Fatalf("dial %s: %v", socketPath, err)
	}
	defer client.Close()

	var fetched, missing, failed int
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id == "" || strings.HasPrefix(id, "#") {
			continue
		}

		resp, err := client.GetMovieMetadata(id)
		if err != nil {
			log.Printf("fetch %s failed: %v", id, err)
			failed++
			continue
		}
		if !resp.Found {
			log.Printf("%s not found upstream", id)
			missing++
			continue
		}
		fetched++
		log.Printf("warmed %s source=%s", id, resp.Source)
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("read ids file: %v", err)
	}

	log.Printf("done fetched=%d missing=%d failed=%d", fetched, missing, failed)
}
