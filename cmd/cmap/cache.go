package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/cmap/pkg/diskcache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the on-disk snapshot cache",
}

var cachePutCmd = &cobra.Command{
	Use:   "put <name> <file>",
	Short: "Store a §6.2 dump file in the cache under name",
	Args:  cobra.ExactArgs(2),
	RunE:  runCachePut,
}

var cacheGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Print the cached dump stored under name",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheGet,
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every cached snapshot name",
	Args:  cobra.NoArgs,
	RunE:  runCacheList,
}

var cacheDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a cached snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheDelete,
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove every cached snapshot",
	Args:  cobra.NoArgs,
	RunE:  runCachePrune,
}

func init() {
	cacheCmd.AddCommand(cachePutCmd, cacheGetCmd, cacheListCmd, cacheDeleteCmd, cachePruneCmd)
}

func openCache() (*diskcache.Cache, error) {
	c, err := diskcache.Open(cfg.CachePath)
	if err != nil {
		return nil, fmt.Errorf("cache: %v", err)
	}
	return c, nil
}

func runCachePut(cmd *cobra.Command, args []string) error {
	name, path := args[0], args[1]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cache put: failed to read %q: %v", path, err)
	}

	c, err := openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Put(name, data); err != nil {
		return fmt.Errorf("cache put: %v", err)
	}
	fmt.Printf("✓ cached %q (%d bytes) as %q\n", path, len(data), name)
	return nil
}

func runCacheGet(cmd *cobra.Command, args []string) error {
	name := args[0]

	c, err := openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	dump, ok, err := c.Get(name)
	if err != nil {
		return fmt.Errorf("cache get: %v", err)
	}
	if !ok {
		return fmt.Errorf("cache get: no snapshot named %q", name)
	}
	_, err = os.Stdout.Write(dump)
	return err
}

func runCacheList(cmd *cobra.Command, args []string) error {
	c, err := openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	names, err := c.List()
	if err != nil {
		return fmt.Errorf("cache list: %v", err)
	}
	if len(names) == 0 {
		fmt.Println("(empty)")
		return nil
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func runCacheDelete(cmd *cobra.Command, args []string) error {
	name := args[0]

	c, err := openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Delete(name); err != nil {
		return fmt.Errorf("cache delete: %v", err)
	}
	fmt.Printf("✓ deleted %q\n", name)
	return nil
}

func runCachePrune(cmd *cobra.Command, args []string) error {
	c, err := openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Prune(); err != nil {
		return fmt.Errorf("cache prune: %v", err)
	}
	fmt.Println("✓ cache pruned")
	return nil
}
