// Package main provides a command-line utility that exercises the
// disk-backed B-tree engine against a real file: create (if needed),
// insert a key/value pair, search a key, and remove a key.
package main

import (
	"flag"
	"fmt"
	"log"

	pstbtree "github.com/kdurai/pstbtree"
	"github.com/kdurai/pstbtree/internal/writer"
)

func main() {
	file := flag.String("file", "tree.pst", "backing file for the tree")
	insertKey := flag.Uint64("insert", 0, "key to insert (0 = skip)")
	searchKey := flag.Uint64("search", 0, "key to search for (0 = skip)")
	removeKey := flag.Uint64("remove", 0, "key to remove (0 = skip)")
	flag.Parse()

	geo, err := pstbtree.NewGeometry(4096, 4000, 4000, 16, 24, 8)
	if err != nil {
		log.Fatalf("invalid geometry: %v", err)
	}

	store, err := writer.NewFileStore(*file, writer.ModeOpenExisting, pstbtree.RootSlotSize, uint64(geo.NodeSize))
	if err != nil {
		store, err = writer.NewFileStore(*file, writer.ModeExclusive, pstbtree.RootSlotSize, uint64(geo.NodeSize))
		if err != nil {
			log.Fatalf("opening backing store: %v", err)
		}
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("closing store: %v", err)
		}
	}()

	pool := pstbtree.NewPool(store, 32, geo.NodeSize)
	dialect := pstbtree.NewFileDialect(store, pool, geo)

	rootRef, hasRoot, err := dialect.LoadRoot()
	if err != nil {
		log.Fatalf("loading root: %v", err)
	}

	var bt *pstbtree.BTree
	if hasRoot {
		bt = pstbtree.NewBTree(pool, geo, dialect, &rootRef)
		fmt.Printf("opened existing tree at %s, root=0x%x\n", *file, rootRef)
	} else {
		bt = pstbtree.NewBTree(pool, geo, dialect, nil)
		ref, err := bt.CreateEmpty()
		if err != nil {
			log.Fatalf("creating tree: %v", err)
		}
		if err := dialect.PersistRoot(ref); err != nil {
			log.Fatalf("persisting root: %v", err)
		}
		fmt.Printf("created new tree at %s, root=0x%x\n", *file, ref)
	}

	if *insertKey != 0 {
		entry := make([]byte, geo.LeafEntrySize)
		for i := 0; i < geo.KeySize; i++ {
			entry[i] = byte(*insertKey >> (8 * i))
		}
		for i := geo.KeySize; i < len(entry); i++ {
			entry[i] = byte(*insertKey)
		}
		status, err := bt.Insert(entry)
		if err != nil {
			log.Fatalf("insert: %v", err)
		}
		fmt.Printf("insert 0x%x: %s\n", *insertKey, status)
	}

	if *searchKey != 0 {
		value, found, err := bt.Search(*searchKey)
		if err != nil {
			log.Fatalf("search: %v", err)
		}
		if found {
			fmt.Printf("search 0x%x: found, value=%x\n", *searchKey, value)
		} else {
			fmt.Printf("search 0x%x: absent\n", *searchKey)
		}
	}

	if *removeKey != 0 {
		status, err := bt.Remove(*removeKey)
		if err != nil {
			log.Fatalf("remove: %v", err)
		}
		fmt.Printf("remove 0x%x: %s\n", *removeKey, status)
	}

	if ref, ok := bt.Root(); ok {
		if err := dialect.PersistRoot(ref); err != nil {
			log.Fatalf("persisting root: %v", err)
		}
	}
}
