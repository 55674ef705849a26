package tolerance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name  string
		value string
		std   string
		tol   string
		want  Status
	}{
		{name: "超差", value: "10.6", std: "10.0", tol: "0.5", want: OutOfTolerance},
		{name: "公差内", value: "10.3", std: "10.0", tol: "0.5", want: WithinTolerance},
		{name: "缺测量值", value: "", std: "10.0", tol: "0.5", want: Unmeasured},
		{name: "恰好在边界", value: "10.5", std: "10.0", tol: "0.5", want: WithinTolerance},
		{name: "负向超差", value: "9.4", std: "10.0", tol: "0.5", want: OutOfTolerance},
		{name: "缺标准值按通过", value: "99", std: "", tol: "0.5", want: WithinTolerance},
		{name: "缺公差按通过", value: "99", std: "10", tol: "", want: WithinTolerance},
		{name: "零公差精确相等", value: "10", std: "10.00", tol: "0", want: WithinTolerance},
		{name: "非法文本视为缺失", value: "n/a", std: "10", tol: "1", want: Unmeasured},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(Parse(tt.value), Parse(tt.std), Parse(tt.tol)))
		})
	}
}

func TestEvaluate_FloatInputs(t *testing.T) {
	// 0.1+0.2 类误差不应导致边界误判
	assert.Equal(t, WithinTolerance, Evaluate(Value(10.3), Value(10.0), Value(0.3)))
	assert.Equal(t, OutOfTolerance, Evaluate(Value(10.6), Value(10.0), Value(0.5)))
	assert.Equal(t, Unmeasured, Evaluate(Missing, Value(10.0), Value(0.5)))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "OutOfTolerance", OutOfTolerance.String())
	assert.Equal(t, "WithinTolerance", WithinTolerance.String())
	assert.Equal(t, "Unmeasured", Unmeasured.String())
}

func TestEvaluateRow(t *testing.T) {
	row := Row{POM: "Chest 1/2", Tol: Value(0.5), Std: Value(52)}
	row.Readings[0] = Value(52.2)
	row.Readings[1] = Value(52.8)
	row.Readings[3] = Value(51.5)

	g := EvaluateRow(row)
	assert.Equal(t, WithinTolerance, g.Cells[0])
	assert.Equal(t, OutOfTolerance, g.Cells[1])
	assert.Equal(t, Unmeasured, g.Cells[2])
	assert.Equal(t, WithinTolerance, g.Cells[3])
	assert.Equal(t, 3, g.Measured)
	assert.Equal(t, 1, g.OutCount)
	assert.True(t, g.Failed())

	ok := Row{POM: "Length", Tol: Value(1), Std: Value(70)}
	ok.Readings[0] = Value(70.5)
	assert.False(t, AnyFailed([]Row{ok}))
	assert.True(t, AnyFailed([]Row{ok, row}))
}
