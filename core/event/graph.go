package event

import (
	"fmt"
	"strings"
)

// validateGraph rejects handler sets with unknown dependencies or cycles.
// Runs in O(V+E); called on every registration.
func validateGraph(specs map[string]HandlerSpec) error {
	if err := validateDependenciesExist(specs); err != nil {
		return err
	}
	return validateNoCycles(specs)
}

func validateDependenciesExist(specs map[string]HandlerSpec) error {
	for name, spec := range specs {
		for _, dep := range spec.DependsOn {
			if _, ok := specs[dep]; !ok {
				return fmt.Errorf("%w: handler %q depends on %q", ErrUnknownDependency, name, dep)
			}
		}
	}
	return nil
}

// validateNoCycles runs a three-colour DFS and reports the cycle path.
func validateNoCycles(specs map[string]HandlerSpec) error {
	const (
		white = iota // unvisited
		gray         // on the current DFS path
		black        // fully explored
	)

	colors := make(map[string]int, len(specs))
	var path []string

	var dfs func(node string) error
	dfs = func(node string) error {
		switch colors[node] {
		case gray:
			start := 0
			for i, n := range path {
				if n == node {
					start = i
					break
				}
			}
			cycle := append(append([]string{}, path[start:]...), node)
			return fmt.Errorf("%w: %s", ErrCycleDetected, strings.Join(cycle, " -> "))
		case black:
			return nil
		}

		colors[node] = gray
		path = append(path, node)
		for _, dep := range specs[node].DependsOn {
			if err := dfs(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		colors[node] = black
		return nil
	}

	for name := range specs {
		if colors[name] == white {
			if err := dfs(name); err != nil {
				return err
			}
		}
	}
	return nil
}
