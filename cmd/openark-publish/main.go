// Command openark-publish republishes a counter on a model's topic once
// a second, grounded on the original source's examples/stream_publish.py.
//
// Usage: openark-publish <model>
//
// Called by: operators exercising a model channel by hand
// Calls: public/runtime
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ulagbulag/openark-go/cmd/internal/kubeclient"
	"github.com/ulagbulag/openark-go/public/runtime"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("usage: %s <model>", os.Args[0])
	}
	modelName := os.Args[1]

	dynamicClient, err := kubeclient.Build()
	if err != nil {
		log.Fatalf("openark-publish: %v", err)
	}

	rt, err := runtime.New(dynamicClient)
	if err != nil {
		log.Fatalf("openark-publish: %v", err)
	}
	defer rt.Close()

	channel, err := rt.GetModelChannel(modelName)
	if err != nil {
		log.Fatalf("openark-publish: get channel for %q: %v", modelName, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for index := 0; ; index++ {
		data := map[string]interface{}{
			"kind":  "stream_publish_example",
			"index": index,
		}
		if _, err := channel.Publish(ctx, data, nil); err != nil {
			log.Fatalf("openark-publish: publish #%d: %v", index, err)
		}
		log.Printf("sent: %d", index)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
