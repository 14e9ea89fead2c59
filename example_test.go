package mdstore_test

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/hupe1980/mdstore"
	"github.com/hupe1980/mdstore/box"
	"github.com/hupe1980/mdstore/event"
)

func Example() {
	dir, err := os.MkdirTemp("", "mdstore-example-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	ctx := context.Background()
	cfg := mdstore.DefaultConfig()
	cfg.Dir = dir
	cfg.Dimensions = 2
	cfg.LogLevel = "error"

	st, err := mdstore.Open(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}

	b, err := st.NewBox(0, []box.Extent{{Min: 0, Max: 4}, {Min: 0, Max: 4}})
	if err != nil {
		log.Fatal(err)
	}
	b.AddEvent(event.New(1, 1, 0.5, 0.5))
	b.AddEvent(event.New(2, 2, 1.5, 1.5))
	b.AddEvent(event.New(3, 3, 2.5, 2.5))

	if err := st.SaveManifest(ctx); err != nil {
		log.Fatal(err)
	}
	if err := st.Close(); err != nil {
		log.Fatal(err)
	}

	st, err = mdstore.Open(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	if err := st.Restore(ctx); err != nil {
		log.Fatal(err)
	}
	restored := st.Boxes()[0]
	fmt.Println(restored.NPoints(), restored.Signal(), restored.Handle().IsLoaded())
	// Output: 3 6 false
}
