package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"premortem/internal/evidence"
	"premortem/internal/graveyard"
	"premortem/internal/premortem"
)

func main() {
	idea := flag.String("idea", "", "Startup idea text (reads stdin when empty)")
	markdown := flag.Bool("markdown", false, "Emit the report as markdown instead of JSON")
	preview := flag.Bool("preview", false, "Run decomposition only")
	flag.Parse()

	text := strings.TrimSpace(*idea)
	if text == "" {
		in, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatalf("read stdin: %v", err)
		}
		text = strings.TrimSpace(string(in))
	}
	if text == "" {
		log.Fatal("missing idea text: pass -idea or pipe it on stdin")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	source := evidence.NewClient(evidence.Config{
		BaseURL:     os.Getenv("PERPLEXITY_BASE_URL"),
		Credentials: credentialPool(),
	})

	var archive premortem.FailureArchive
	if url := strings.TrimSpace(os.Getenv("GRAVEYARD_URL")); url != "" {
		archive = graveyard.NewClient(graveyard.Config{
			BaseURL: url,
			APIKey:  strings.TrimSpace(os.Getenv("GRAVEYARD_KEY")),
		})
	}

	pipeline := premortem.NewPipeline(source, archive)

	if *preview {
		dec := pipeline.QuickPreview(ctx, text)
		emitJSON(dec)
		return
	}

	report := pipeline.Run(ctx, text, func(p premortem.Progress) {
		log.Printf("stage=%s pct=%d msg=%q", p.CurrentStage, p.StageProgress, p.StageMessage)
	})

	if *markdown {
		fmt.Print(premortem.BuildMarkdown(report))
		return
	}
	emitJSON(report)
}

func emitJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("encode output: %v", err)
	}
	fmt.Println(string(b))
}

func credentialPool() []string {
	keys := []string{}
	for _, name := range []string{"PERPLEXITY_API_KEY_1", "PERPLEXITY_API_KEY_2", "PERPLEXITY_API_KEY_3", "PERPLEXITY_API_KEY"} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			keys = append(keys, v)
		}
	}
	return keys
}
