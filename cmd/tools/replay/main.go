package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/bytedance/sonic"

	"main/internal/schema"
)

func main() {
	file := flag.String("file", "", "Recording file to inspect")
	verbose := flag.Bool("v", false, "Print every event")
	flag.Parse()

	if *file == "" {
		log.Fatal("missing -file")
	}
	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("open recording failed: %v", err)
	}
	defer f.Close()

	var (
		index      int
		malformed  int
		firstTs    int64
		lastTs     int64
		topicCount = make(map[string]int)
		symbols    = make(map[string]int)
	)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec struct {
			Ts      int64       `json:"ts"`
			Topic   string      `json:"topic"`
			Payload schema.Tick `json:"payload"`
		}
		if err := sonic.Unmarshal(line, &rec); err != nil {
			malformed++
			continue
		}

		index++
		topicCount[rec.Topic]++
		if firstTs == 0 || rec.Ts < firstTs {
			firstTs = rec.Ts
		}
		if rec.Ts > lastTs {
			lastTs = rec.Ts
		}
		if rec.Topic == schema.TopicTick {
			symbols[rec.Payload.Symbol]++
			if *verbose {
				fmt.Printf("%06d ts=%d %s %s mid=%.6f\n", index, rec.Ts, rec.Topic, rec.Payload.Symbol, rec.Payload.Mid)
			}
		} else if *verbose {
			fmt.Printf("%06d ts=%d %s\n", index, rec.Ts, rec.Topic)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("read recording failed: %v", err)
	}

	span := time.Duration(lastTs-firstTs) * time.Millisecond
	fmt.Printf("events=%d malformed=%d span=%s\n", index, malformed, span)
	for topic, count := range topicCount {
		fmt.Printf("  topic %-20s %d\n", topic, count)
	}
	for symbol, count := range symbols {
		fmt.Printf("  symbol %-12s %d\n", symbol, count)
	}
}
