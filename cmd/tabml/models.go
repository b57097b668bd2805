package main

import (
	"errors"
	"fmt"

	"tabml/internal/cfg"
	"tabml/internal/registry"
)

const modelsUsage = "usage: tabml models [list | show <id> | versions <id> | activate <id> <version> | rollback <id> | delete <id>]"

func runModels(c cfg.Settings, args []string) error {
	action := "list"
	if len(args) > 0 {
		action = args[0]
		args = args[1:]
	}

	store, err := openRegistry(c)
	if err != nil {
		return err
	}
	defer store.Close()

	switch action {
	case "list":
		return listModels(store)
	case "show":
		if len(args) != 1 {
			return errors.New(modelsUsage)
		}
		meta, err := store.Metadata(args[0])
		if err != nil {
			return err
		}
		data, err := meta.MarshalIndent()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	case "versions":
		if len(args) != 1 {
			return errors.New(modelsUsage)
		}
		return listVersions(store, args[0])
	case "activate":
		if len(args) != 2 {
			return errors.New(modelsUsage)
		}
		if err := store.Activate(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("%s %s now serves version %s\n", green("✓"), bold(args[0]), args[1])
		return nil
	case "rollback":
		if len(args) != 1 {
			return errors.New(modelsUsage)
		}
		version, err := store.Rollback(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s %s rolled back to version %s\n", green("✓"), bold(args[0]), version)
		return nil
	case "delete":
		if len(args) != 1 {
			return errors.New(modelsUsage)
		}
		if err := store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("%s deleted %s\n", green("✓"), bold(args[0]))
		return nil
	default:
		return errors.New(modelsUsage)
	}
}

func listModels(store *registry.Store) error {
	list, err := store.List()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println(yellow("no models registered"))
		return nil
	}

	fmt.Printf("%-32s %-20s %-16s %-9s %s\n", "ID", "ALGORITHM", "TARGET", "F1", "CREATED")
	for _, m := range list {
		created := m.CreatedAt
		if t, err := m.Created(); err == nil {
			created = t.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%s %-20s %-16s %-9.4f %s\n", cyan(fmt.Sprintf("%-32s", m.ID)), m.Algorithm, m.TargetColumn, m.Score(), created)
	}
	return nil
}

func listVersions(store *registry.Store, id string) error {
	versions, err := store.Versions(id)
	if err != nil {
		return err
	}
	for _, v := range versions {
		marker := " "
		if v.IsActive {
			marker = green("*")
		}
		fmt.Printf("%s %-34s %-20s %.4f  %s\n", marker, v.Version, v.Algorithm, v.F1Score, v.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
