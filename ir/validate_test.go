package ir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/druarnfield/unmdx/diagnostics"
	"github.com/druarnfield/unmdx/ir"
)

func measureRef(name string) *ir.Expression {
	return &ir.Expression{Kind: ir.ExprMeasureRef, MeasureRef: &ir.MeasureReference{Name: name}}
}

func TestValidate_DetectsCircularCalculation(t *testing.T) {
	q := &ir.Query{
		Calculations: []ir.Calculation{
			{Name: "A", Kind: ir.CalcMeasure, Expression: *measureRef("B")},
			{Name: "B", Kind: ir.CalcMeasure, Expression: *measureRef("A")},
		},
	}
	bag := diagnostics.NewBag()
	ir.Validate(q, bag)

	require.True(t, bag.HasErrors())
	assert.False(t, q.Valid)

	found := false
	for _, d := range bag.All() {
		if d.Code == "circular_calculation" {
			found = true
		}
	}
	assert.True(t, found, "expected a circular_calculation diagnostic")
}

func TestValidate_AcceptsAcyclicCalculation(t *testing.T) {
	q := &ir.Query{
		Measures: []ir.Measure{{Name: "Sales Amount", Aggregation: ir.AggSum}},
		Calculations: []ir.Calculation{
			{Name: "Double Sales", Kind: ir.CalcMeasure, Expression: ir.Expression{
				Kind: ir.ExprBinaryOp,
				BinaryOp: &ir.BinaryOp{
					Op:    ir.OpMul,
					Left:  measureRef("Sales Amount"),
					Right: &ir.Expression{Kind: ir.ExprConstant, Constant: &ir.Constant{Type: ir.ConstNumeric, Number: 2}},
				},
			}},
		},
	}
	bag := diagnostics.NewBag()
	ir.Validate(q, bag)

	assert.False(t, bag.HasErrors())
	assert.True(t, q.Valid)
}

func TestValidate_RejectsEmptySpecificSelection(t *testing.T) {
	q := &ir.Query{
		Dimensions: []ir.Dimension{
			{
				Hierarchy: ir.HierarchyReference{Table: "Product", Hierarchy: "Category"},
				Level:     ir.LevelReference{Level: "Category"},
				Members:   ir.MemberSelection{Kind: ir.SelectSpecific},
			},
		},
	}
	bag := diagnostics.NewBag()
	ir.Validate(q, bag)

	require.True(t, bag.HasErrors())
	assert.False(t, q.Valid)
}

func TestValidate_RejectsUndefinedMeasureReference(t *testing.T) {
	q := &ir.Query{
		Calculations: []ir.Calculation{
			{Name: "Bogus", Kind: ir.CalcMeasure, Expression: *measureRef("Does Not Exist")},
		},
	}
	bag := diagnostics.NewBag()
	ir.Validate(q, bag)

	require.True(t, bag.HasErrors())
	assert.False(t, q.Valid)
}
