// Command openark-query runs a SQL query over the Global Namespace's
// federation of discovered model tables, grounded on the original
// source's examples/query.py.
//
// Usage: openark-query <query>
//
// Called by: operators exercising the Global Namespace by hand
// Calls: public/runtime, public/namespace
package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/ulagbulag/openark-go/cmd/internal/kubeclient"
	"github.com/ulagbulag/openark-go/public/runtime"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("usage: %s <query>", os.Args[0])
	}
	query := os.Args[1]

	dynamicClient, err := kubeclient.Build()
	if err != nil {
		log.Fatalf("openark-query: %v", err)
	}

	rt, err := runtime.New(dynamicClient)
	if err != nil {
		log.Fatalf("openark-query: %v", err)
	}
	defer rt.Close()

	ctx := context.Background()
	ns := rt.GetGlobalNamespace()
	if err := ns.Update(ctx); err != nil {
		log.Fatalf("openark-query: update federation: %v", err)
	}

	rows, err := ns.SQL(ctx, query)
	if err != nil {
		log.Fatalf("openark-query: %v", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		log.Fatalf("openark-query: columns: %v", err)
	}
	os.Stdout.WriteString(strings.Join(columns, "\t") + "\n")

	values := make([]interface{}, len(columns))
	pointers := make([]interface{}, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			log.Fatalf("openark-query: scan row: %v", err)
		}
		cells := make([]string, len(values))
		for i, v := range values {
			if s, ok := v.(string); ok {
				cells[i] = s
			} else {
				cells[i] = ""
			}
		}
		os.Stdout.WriteString(strings.Join(cells, "\t") + "\n")
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("openark-query: iterate rows: %v", err)
	}
}
