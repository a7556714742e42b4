package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"

	"github.com/diffduel/internal/domain"
	"github.com/diffduel/internal/protocol"
)

var playerPrefixes = []string{
	"Pixel", "Loupe", "Lynx", "Hawk", "Owl", "Falcon", "Spotter", "Seeker", "Scout", "Tracker",
	"Glimpse", "Prism", "Lens", "Focus", "Iris", "Optic", "Radar", "Sonar", "Beacon", "Vista",
}

func playerName(idx int) string {
	prefixIdx := idx % len(playerPrefixes)
	suffix := idx/len(playerPrefixes) + 1
	return fmt.Sprintf("%s%d", playerPrefixes[prefixIdx], suffix)
}

func randomSubmission(gameIDs []string, players int) protocol.SubmitScorePayload {
	mode := domain.SinglePlayer
	if rand.Intn(2) == 1 {
		mode = domain.MultiPlayer
	}
	gameID := gameIDs[rand.Intn(len(gameIDs))]

	return protocol.SubmitScorePayload{
		GameID:   gameID,
		Mode:     mode,
		GameName: gameID,
		Score: domain.UsersScore{
			Username: playerName(rand.Intn(players)),
			// finish times in seconds, most runs land between 30s and 10min
			Time: rand.Intn(570) + 30,
		},
	}
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "score-submissions", "Kafka topic")
	games := flag.String("games", "game1", "Game IDs to submit scores for (comma-separated)")
	totalPlayers := flag.Int("players", 100, "Number of distinct player names")
	submissionsPerSecond := flag.Int("rate", 10, "Submissions per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	count := flag.Int("count", 0, "Stop after this many submissions (0 = unlimited)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")
	gameIDs := strings.Split(*games, ",")
	if *totalPlayers <= 0 || *submissionsPerSecond <= 0 {
		log.Fatal("players and rate must be positive")
	}

	fmt.Println("Score submission producer")
	fmt.Printf("  Brokers:         %s\n", *brokers)
	fmt.Printf("  Topic:           %s\n", *topic)
	fmt.Printf("  Games:           %s\n", *games)
	fmt.Printf("  Players:         %d\n", *totalPlayers)
	fmt.Printf("  Submissions/sec: %d\n", *submissionsPerSecond)
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	shutdown := func(reason string) {
		fmt.Printf("\n%s, shutting down...\n", reason)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	send := func(submission protocol.SubmitScorePayload) {
		data, err := json.Marshal(submission)
		if err != nil {
			log.Printf("Failed to marshal submission: %v", err)
			return
		}
		producer.Input() <- &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(submission.GameID),
			Value: sarama.ByteEncoder(data),
		}
	}

	ticker := time.NewTicker(time.Second / time.Duration(*submissionsPerSecond))
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var submitted int
	for {
		select {
		case <-sigChan:
			shutdown("Interrupted")
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				shutdown("Duration reached")
				return
			}
			if *count > 0 && submitted >= *count {
				shutdown("Count reached")
				return
			}
			send(randomSubmission(gameIDs, *totalPlayers))
			submitted++

		case <-statsTicker.C:
			fmt.Printf("[%s] Submitted: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				submitted,
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
