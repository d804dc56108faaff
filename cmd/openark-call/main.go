// Command openark-call invokes a registered Function with a JSON value
// and a set of payload files, grounded on the original source's
// examples/call_function.py. With --watch-output, it also subscribes
// to the function's output model out of band before invoking, printing
// every reply observed on that topic (spec.md §4.6: "callers may also
// subscribe to the function's reply stream out of band").
//
// Usage: openark-call [--watch-output] <function> <json-value> [file...]
//
// Called by: operators exercising a registered Function by hand
// Calls: public/runtime
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/ulagbulag/openark-go/cmd/internal/kubeclient"
	"github.com/ulagbulag/openark-go/public/envelope"
	"github.com/ulagbulag/openark-go/public/runtime"
)

func main() {
	watchOutput := flag.Bool("watch-output", false, "subscribe to the function's output model out of band before invoking")
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		log.Fatalf("usage: %s [--watch-output] <function> <json-value> [file...]", os.Args[0])
	}
	functionName := args[0]
	rawValue := args[1]
	files := args[2:]

	var value map[string]interface{}
	if err := json.Unmarshal([]byte(rawValue), &value); err != nil {
		log.Fatalf("openark-call: parse value: %v", err)
	}

	payloads := make([]envelope.Input, len(files))
	for i, filename := range files {
		data, err := os.ReadFile(filename)
		if err != nil {
			log.Fatalf("openark-call: read payload %s: %v", filename, err)
		}
		payloads[i] = envelope.Input{Key: filepath.Base(filename), Value: data}
	}

	dynamicClient, err := kubeclient.Build()
	if err != nil {
		log.Fatalf("openark-call: %v", err)
	}

	rt, err := runtime.New(dynamicClient)
	if err != nil {
		log.Fatalf("openark-call: %v", err)
	}
	defer rt.Close()

	ctx := context.Background()
	fn, err := rt.GetFunction(ctx, functionName)
	if err != nil {
		log.Fatalf("openark-call: lookup %q: %v", functionName, err)
	}

	if *watchOutput {
		go watchFunctionOutput(ctx, fn.Output.Name())
	}

	output, err := fn.Invoke(ctx, value, payloads)
	if err != nil {
		log.Fatalf("openark-call: invoke %q: %v", functionName, err)
	}

	pretty, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		log.Fatalf("openark-call: marshal output: %v", err)
	}
	os.Stdout.Write(pretty)
	os.Stdout.Write([]byte("\n"))
}

// watchFunctionOutput logs every envelope observed on name, the
// function's output topic, independent of the request/reply round
// trip the caller's own Invoke performs.
func watchFunctionOutput(ctx context.Context, name string) {
	dynamicClient, err := kubeclient.Build()
	if err != nil {
		log.Printf("openark-call: watch-output: %v", err)
		return
	}
	rt, err := runtime.New(dynamicClient)
	if err != nil {
		log.Printf("openark-call: watch-output: %v", err)
		return
	}

	channel, err := rt.GetModelChannel(name)
	if err != nil {
		log.Printf("openark-call: watch-output: get channel for %q: %v", name, err)
		return
	}

	for {
		env, err := channel.Next(ctx)
		if err != nil {
			log.Printf("openark-call: watch-output: %v", err)
			return
		}
		log.Printf("watch-output %s: %v", name, env)
	}
}
