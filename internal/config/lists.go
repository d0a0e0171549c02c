package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// The top-level branches/images/packages/services/scripts keys are YAML
// mappings whose entry order is meaningful: matrix expansion and constraint
// resolution walk them in declaration order. Decoding into Go maps would lose
// that, so each list type unmarshals the mapping node by hand.

// BranchList holds branches in declaration order.
type BranchList []Branch

type branchSpec struct {
	Arches        yaml.Node `yaml:"arches"`
	Branding      string    `yaml:"branding"`
	Prerequisites []string  `yaml:"prerequisites"`
	RepositoryURL string    `yaml:"repository_url"`
	ImageRepo     string    `yaml:"image_repo"`
}

func (l *BranchList) UnmarshalYAML(value *yaml.Node) error {
	pairs, err := mappingPairs(value, "branches")
	if err != nil {
		return err
	}
	for _, p := range pairs {
		var spec branchSpec
		if err := decodeValue(p.val, &spec); err != nil {
			return fmt.Errorf("branch %q: %w", p.key, err)
		}
		arches, err := decodeArches(&spec.Arches)
		if err != nil {
			return fmt.Errorf("branch %q: %w", p.key, err)
		}
		*l = append(*l, Branch{
			Name:          p.key,
			Arches:        arches,
			Branding:      spec.Branding,
			Prerequisites: spec.Prerequisites,
			RepositoryURL: spec.RepositoryURL,
			ImageRepo:     spec.ImageRepo,
		})
	}
	return nil
}

type archSpec struct {
	RepositoryURL string `yaml:"repository_url"`
	ImageRepo     string `yaml:"image_repo"`
}

func decodeArches(node *yaml.Node) ([]Arch, error) {
	if node.Kind == 0 || node.Tag == "!!null" {
		return nil, nil
	}
	pairs, err := mappingPairs(node, "arches")
	if err != nil {
		return nil, err
	}
	arches := make([]Arch, 0, len(pairs))
	for _, p := range pairs {
		var spec archSpec
		if err := decodeValue(p.val, &spec); err != nil {
			return nil, fmt.Errorf("arch %q: %w", p.key, err)
		}
		arches = append(arches, Arch{
			Name:          p.key,
			RepositoryURL: spec.RepositoryURL,
			ImageRepo:     spec.ImageRepo,
		})
	}
	return arches, nil
}

// ImageList holds images in declaration order.
type ImageList []Image

func (l *ImageList) UnmarshalYAML(value *yaml.Node) error {
	pairs, err := mappingPairs(value, "images")
	if err != nil {
		return err
	}
	for _, p := range pairs {
		var im Image
		if err := decodeValue(p.val, &im); err != nil {
			return fmt.Errorf("image %q: %w", p.key, err)
		}
		im.Name = p.key
		*l = append(*l, im)
	}
	return nil
}

// Constraint is the optional allow/deny/state record of a declarative item.
// A nil list means "no constraint" for that dimension.
type Constraint struct {
	Images          []string `yaml:"images"`
	Branches        []string `yaml:"branches"`
	ExcludeImages   []string `yaml:"exclude_images"`
	ExcludeBranches []string `yaml:"exclude_branches"`
	State           *string  `yaml:"state"`
}

// Item is one declarative package or service entry. A nil Constraint means
// the item applies everywhere with the default state.
type Item struct {
	Name       string
	Constraint *Constraint
}

// ItemList holds constrained items in declaration order.
type ItemList []Item

func (l *ItemList) UnmarshalYAML(value *yaml.Node) error {
	pairs, err := mappingPairs(value, "items")
	if err != nil {
		return err
	}
	for _, p := range pairs {
		item := Item{Name: p.key}
		if p.val.Kind != 0 && p.val.Tag != "!!null" {
			var c Constraint
			if err := p.val.Decode(&c); err != nil {
				return fmt.Errorf("item %q: %w", p.key, err)
			}
			item.Constraint = &c
		}
		*l = append(*l, item)
	}
	return nil
}

// Script is a build-time hook script installed into the profile tree.
type Script struct {
	Name     string
	Contents string `yaml:"contents"`
	Global   bool   `yaml:"global"`
	Number   *int   `yaml:"number"`
}

// ScriptList holds scripts in declaration order.
type ScriptList []Script

func (l *ScriptList) UnmarshalYAML(value *yaml.Node) error {
	pairs, err := mappingPairs(value, "scripts")
	if err != nil {
		return err
	}
	for _, p := range pairs {
		var s Script
		if err := decodeValue(p.val, &s); err != nil {
			return fmt.Errorf("script %q: %w", p.key, err)
		}
		s.Name = p.key
		*l = append(*l, s)
	}
	return nil
}

type mappingPair struct {
	key string
	val *yaml.Node
}

func mappingPairs(node *yaml.Node, what string) ([]mappingPair, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s: expected a mapping, got %s", what, nodeKind(node))
	}
	pairs := make([]mappingPair, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		pairs = append(pairs, mappingPair{key: node.Content[i].Value, val: node.Content[i+1]})
	}
	return pairs, nil
}

// decodeValue decodes a node into dst, treating null/absent nodes as empty.
func decodeValue(node *yaml.Node, dst any) error {
	if node == nil || node.Kind == 0 || node.Tag == "!!null" {
		return nil
	}
	return node.Decode(dst)
}

func nodeKind(node *yaml.Node) string {
	switch node.Kind {
	case yaml.ScalarNode:
		return "scalar"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	default:
		return "unknown node"
	}
}
