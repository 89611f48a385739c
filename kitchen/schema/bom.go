package schema

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

var ErrRecipeCycle = errors.New("recipe composition would form a cycle")

// BomGraph is the component graph of every recipe in a store.
type BomGraph struct {
	components map[uuid.UUID][]RecipeIngredient
}

func LoadBomGraph(t Tenant) (*BomGraph, error) {
	var rows []RecipeIngredient
	result := t.db.Model(&RecipeIngredient{}).
		Joins("JOIN recipes ON recipes.id = recipe_ingredients.recipe_id").
		Where("recipes.store_id = ?", t.storeId).
		Order("recipe_ingredients.position").
		Find(&rows)
	if result.Error != nil {
		return nil, translateError("load recipe graph", result.Error, nil)
	}

	graph := &BomGraph{components: make(map[uuid.UUID][]RecipeIngredient)}
	for _, row := range rows {
		graph.components[row.RecipeId] = append(graph.components[row.RecipeId], row)
	}
	return graph, nil
}

func NewBomGraph(recipes []Recipe) *BomGraph {
	graph := &BomGraph{components: make(map[uuid.UUID][]RecipeIngredient, len(recipes))}
	for _, recipe := range recipes {
		graph.components[recipe.Id] = recipe.Ingredients
	}
	return graph
}

// Reaches reports whether target is reachable from start by following sub
// recipe references. A recipe reaches itself.
func (g *BomGraph) Reaches(start, target uuid.UUID) bool {
	visited := map[uuid.UUID]struct{}{}
	stack := []uuid.UUID{start}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if current == target {
			return true
		}
		if _, ok := visited[current]; ok {
			continue
		}
		visited[current] = struct{}{}

		for _, component := range g.components[current] {
			if component.ChildRecipeId != nil {
				stack = append(stack, *component.ChildRecipeId)
			}
		}
	}

	return false
}

// CheckAcyclic verifies that giving recipeId the components would not create a cycle.
func (g *BomGraph) CheckAcyclic(recipeId uuid.UUID, components []Component) error {
	for _, component := range components {
		if component.Ref.Kind() != RecipeKind {
			continue
		}
		if g.Reaches(component.Ref.Id(), recipeId) {
			return ErrRecipeCycle
		}
	}
	return nil
}

// Expand adds the raw ingredient quantities needed for quantity units of the
// recipe into totals. A recipe that is already being expanded higher up the
// path is skipped so corrupt data cannot recurse forever.
func (g *BomGraph) Expand(recipeId uuid.UUID, quantity float64, totals map[uuid.UUID]float64) {
	g.expand(recipeId, quantity, totals, map[uuid.UUID]bool{})
}

func (g *BomGraph) expand(recipeId uuid.UUID, quantity float64, totals map[uuid.UUID]float64, path map[uuid.UUID]bool) {
	if path[recipeId] {
		slog.Error("cycle detected while expanding recipe", "recipe_id", recipeId)
		return
	}
	path[recipeId] = true
	defer delete(path, recipeId)

	for _, component := range g.components[recipeId] {
		amount := component.Quantity * quantity
		switch {
		case component.IngredientId != nil:
			totals[*component.IngredientId] += amount
		case component.ChildRecipeId != nil:
			g.expand(*component.ChildRecipeId, amount, totals, path)
		}
	}
}
