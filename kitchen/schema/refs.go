package schema

import (
	"errors"

	"github.com/google/uuid"
)

var ErrInvalidRef = errors.New("exactly one of ingredient_id or child_recipe_id must be set")

type RefKind int

const (
	noRef RefKind = iota
	IngredientKind
	RecipeKind
)

func (k RefKind) String() string {
	switch k {
	case IngredientKind:
		return "ingredient"
	case RecipeKind:
		return "recipe"
	default:
		return "none"
	}
}

// ComponentRef points a recipe component at either a raw ingredient or a sub
// recipe. The zero value is invalid, refs are built with IngredientRef or SubRecipeRef.
type ComponentRef struct {
	kind RefKind
	id   uuid.UUID
}

func IngredientRef(id uuid.UUID) ComponentRef {
	return ComponentRef{kind: IngredientKind, id: id}
}

func SubRecipeRef(id uuid.UUID) ComponentRef {
	return ComponentRef{kind: RecipeKind, id: id}
}

// NewComponentRef converts the nullable pair used on the wire into a ref.
func NewComponentRef(ingredientId, childRecipeId *uuid.UUID) (ComponentRef, error) {
	switch {
	case ingredientId != nil && childRecipeId == nil:
		return IngredientRef(*ingredientId), nil
	case ingredientId == nil && childRecipeId != nil:
		return SubRecipeRef(*childRecipeId), nil
	default:
		return ComponentRef{}, ErrInvalidRef
	}
}

func (r ComponentRef) Kind() RefKind { return r.kind }

func (r ComponentRef) Id() uuid.UUID { return r.id }

func (r ComponentRef) Valid() bool { return r.kind != noRef }

// columns returns the persisted (ingredient_id, child_recipe_id) pair.
func (r ComponentRef) columns() (*uuid.UUID, *uuid.UUID) {
	id := r.id
	switch r.kind {
	case IngredientKind:
		return &id, nil
	case RecipeKind:
		return nil, &id
	default:
		return nil, nil
	}
}

// Component is a validated line of a recipe's bill of materials.
type Component struct {
	Ref      ComponentRef
	Quantity float64
}

var ErrInvalidWasteTarget = errors.New("exactly one of ingredient_id or recipe_id must be set")

// WasteTarget is the thing that was wasted: a raw ingredient or a finished recipe.
type WasteTarget struct {
	kind RefKind
	id   uuid.UUID
}

func IngredientWaste(id uuid.UUID) WasteTarget {
	return WasteTarget{kind: IngredientKind, id: id}
}

func RecipeWaste(id uuid.UUID) WasteTarget {
	return WasteTarget{kind: RecipeKind, id: id}
}

func NewWasteTarget(ingredientId, recipeId *uuid.UUID) (WasteTarget, error) {
	switch {
	case ingredientId != nil && recipeId == nil:
		return IngredientWaste(*ingredientId), nil
	case ingredientId == nil && recipeId != nil:
		return RecipeWaste(*recipeId), nil
	default:
		return WasteTarget{}, ErrInvalidWasteTarget
	}
}

func (w WasteTarget) Kind() RefKind { return w.kind }

func (w WasteTarget) Id() uuid.UUID { return w.id }

func (w WasteTarget) Valid() bool { return w.kind != noRef }

func (w WasteTarget) columns() (*uuid.UUID, *uuid.UUID) {
	id := w.id
	switch w.kind {
	case IngredientKind:
		return &id, nil
	case RecipeKind:
		return nil, &id
	default:
		return nil, nil
	}
}
