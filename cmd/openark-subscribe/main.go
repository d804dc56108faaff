// Command openark-subscribe prints every envelope received on a
// model's topic, grounded on the original source's
// examples/stream_subscribe.py.
//
// Usage: openark-subscribe <model>
//
// Called by: operators exercising a model channel by hand
// Calls: public/runtime
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

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
		log.Fatalf("openark-subscribe: %v", err)
	}

	rt, err := runtime.New(dynamicClient)
	if err != nil {
		log.Fatalf("openark-subscribe: %v", err)
	}
	defer rt.Close()

	channel, err := rt.GetModelChannel(modelName)
	if err != nil {
		log.Fatalf("openark-subscribe: get channel for %q: %v", modelName, err)
	}

	ctx := context.Background()
	for {
		env, err := channel.Next(ctx)
		if err != nil {
			log.Fatalf("openark-subscribe: next: %v", err)
		}
		pretty, err := json.MarshalIndent(env, "", "  ")
		if err != nil {
			log.Printf("openark-subscribe: marshal envelope: %v", err)
			continue
		}
		os.Stdout.Write(pretty)
		os.Stdout.Write([]byte("\n"))
	}
}
