package validation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func run(t *testing.T, r Rule, v any, opts ...ContextOption) (any, Errors) {
	t.Helper()
	p := Compile(map[string]Rule{"f": r})
	e, _ := p.Entry("f")
	c := NewContext(opts...)
	ExecuteStarts(p, e, c)
	Execute(v, p, e, c)
	ExecuteEnds(p, e, c)
	out, _ := c.Captures().Get("f")
	return out, c.Errors()
}

func codes(errs Errors) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestRules_TypeChecks(t *testing.T) {
	tests := []struct {
		name  string
		rule  Rule
		value any
		want  any
		code  string
	}{
		{"string", IsString(), "x", "x", ""},
		{"string rejects number", IsString(), 1, nil, CodeString},
		{"int from json number", IsInt(), float64(7), int64(7), ""},
		{"int rejects fraction", IsInt(), 7.5, nil, CodeInt},
		{"float from int", IsFloat(), 3, float64(3), ""},
		{"numeric keeps value", IsNumeric(), 3, 3, ""},
		{"bool", IsBool(), true, true, ""},
		{"array", IsArray(), []any{1}, []any{1}, ""},
		{"uuid", IsUUID(), "6ba7b810-9dad-11d1-80b4-00c04fd430c8", "6ba7b810-9dad-11d1-80b4-00c04fd430c8", ""},
		{"uuid rejects garbage", IsUUID(), "nope", nil, CodeUUID},
		{"null", IsNull(), nil, nil, ""},
		{"not null", NotNull(), nil, nil, CodeNotNull},
		{"nullable nil", Nullable(IsInt()), nil, nil, ""},
		{"nullable value", Nullable(IsInt()), "a", nil, CodeInt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errs := run(t, tt.rule, tt.value)
			if tt.code == "" {
				require.Empty(t, errs)
				assert.Equal(t, tt.want, out)
				return
			}
			assert.Equal(t, []string{tt.code}, codes(errs))
		})
	}
}

func TestRules_Conversions(t *testing.T) {
	out, errs := run(t, StringToInt(), " 42 ")
	require.Empty(t, errs)
	assert.Equal(t, int64(42), out)

	out, errs = run(t, StringToFloat(), "1.5")
	require.Empty(t, errs)
	assert.Equal(t, 1.5, out)

	out, errs = run(t, StringToBool(), "true")
	require.Empty(t, errs)
	assert.Equal(t, true, out)

	_, errs = run(t, StringToBool(), "maybe")
	assert.Equal(t, []string{CodeBool}, codes(errs))

	out, errs = run(t, StringToDateTime(time.RFC3339), "2024-03-01T10:00:00+02:00")
	require.Empty(t, errs)
	assert.True(t, out.(time.Time).Equal(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)))

	out, errs = run(t, And(StringToDateTime(time.RFC3339), FormatDateTime("2006-01-02 15:04:05")), "2024-03-01T10:00:00+02:00")
	require.Empty(t, errs)
	assert.Equal(t, "2024-03-01 08:00:00", out)

	_, errs = run(t, StringToDateTime(time.RFC3339), "yesterday")
	require.Len(t, errs, 1)
	assert.Equal(t, time.RFC3339, errs[0].Params["layout"])
}

func TestRules_Constraints(t *testing.T) {
	_, errs := run(t, StringLengthBetween(5, 5), "héllo")
	assert.Empty(t, errs)

	_, errs = run(t, StringLengthMin(3), "ab")
	assert.Equal(t, []string{CodeLengthMin}, codes(errs))

	_, errs = run(t, StringLengthMax(3), "abcd")
	assert.Equal(t, []string{CodeLengthMax}, codes(errs))

	_, errs = run(t, Regexp(`^[a-z]+$`), "abc1")
	assert.Equal(t, []string{CodeRegexp}, codes(errs))

	_, errs = run(t, Between(1, 10), 10)
	assert.Empty(t, errs)
	_, errs = run(t, Between(1, 10), 10.5)
	assert.Equal(t, []string{CodeBetween}, codes(errs))

	_, errs = run(t, Enum("draft", "published"), "draft")
	assert.Empty(t, errs)
	_, errs = run(t, Enum("draft", "published"), "gone")
	assert.Equal(t, []string{CodeEnum}, codes(errs))

	_, errs = run(t, Equals("yes"), "yes")
	assert.Empty(t, errs)
	_, errs = run(t, Equals("yes"), nil)
	assert.Equal(t, []string{CodeEquals}, codes(errs))

	_, errs = run(t, Fail("custom"), 1)
	assert.Equal(t, []string{"custom"}, codes(errs))
}

func TestRules_Required(t *testing.T) {
	p := Compile(map[string]Rule{"title": And(Required(), IsString())})

	v := NewValidator(p, nil)
	assert.False(t, v.Validate(context.Background(), map[string]any{}))
	require.Len(t, v.Errors(), 1)
	assert.Equal(t, Error{Field: "title", Code: CodeRequired}, v.Errors()[0])

	assert.False(t, v.Validate(context.Background(), map[string]any{"title": 3}))
	assert.Equal(t, []string{CodeString}, codes(v.Errors()))

	assert.True(t, v.Validate(context.Background(), map[string]any{"title": "ok"}))
}

func TestRules_Expression(t *testing.T) {
	_, errs := run(t, Expression("len(value) >= 3"), "ab")
	require.Len(t, errs, 1)
	assert.Equal(t, CodeExpression, errs[0].Code)
	assert.Equal(t, "len(value) >= 3", errs[0].Params["expression"])

	_, errs = run(t, Expression("len(value) >= 3"), "abc")
	assert.Empty(t, errs)

	assert.Panics(t, func() { Expression("value >") })
}

func TestRules_ExpressionSeesRecord(t *testing.T) {
	p := Compile(map[string]Rule{
		"password":         IsString(),
		"password_confirm": Expression("value == record.password"),
	})
	v := NewValidator(p, nil)

	assert.True(t, v.Validate(context.Background(), map[string]any{"password": "s3cret", "password_confirm": "s3cret"}))
	assert.False(t, v.Validate(context.Background(), map[string]any{"password": "s3cret", "password_confirm": "other"}))
	assert.Equal(t, "password_confirm", v.Errors()[0].Field)
}

func TestRules_When(t *testing.T) {
	r := When("value > 10", Fail("too-big"), IsInt())

	_, errs := run(t, r, 11)
	assert.Equal(t, []string{"too-big"}, codes(errs))

	out, errs := run(t, r, float64(3))
	require.Empty(t, errs)
	assert.Equal(t, int64(3), out)
}

type fakeChecker struct {
	taken  map[string]any
	called int
}

func (f *fakeChecker) Exists(_ context.Context, entity, column string, value, exceptID any) (bool, error) {
	f.called++
	owner, ok := f.taken[entity+"."+column+"="+value.(string)]
	if !ok {
		return false, nil
	}
	return exceptID == nil || exceptID != owner, nil
}

func TestRules_UniqueAndExists(t *testing.T) {
	ch := &fakeChecker{taken: map[string]any{"User.email=a@x.io": int64(1)}}

	_, errs := run(t, Unique("User", "email"), "a@x.io", WithChecker(ch))
	require.Len(t, errs, 1)
	assert.Equal(t, CodeUnique, errs[0].Code)
	assert.Equal(t, "email", errs[0].Params["column"])

	_, errs = run(t, Unique("User", "email"), "a@x.io", WithChecker(ch), WithValue(ExceptIDKey, int64(1)))
	assert.Empty(t, errs)

	_, errs = run(t, Unique("User", "email"), "b@x.io", WithChecker(ch))
	assert.Empty(t, errs)

	_, errs = run(t, Exists("User", "email"), "b@x.io", WithChecker(ch))
	assert.Equal(t, []string{CodeExists}, codes(errs))

	_, errs = run(t, Unique("User", "email"), "a@x.io")
	assert.Equal(t, []string{CodeInternal}, codes(errs))
}

func TestRules_Hash(t *testing.T) {
	out, errs := run(t, Hash(bcrypt.MinCost), "s3cret")
	require.Empty(t, errs)

	hash := out.(string)
	assert.True(t, strings.HasPrefix(hash, "$2a$"))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))

	_, errs = run(t, Hash(bcrypt.MinCost), 12)
	assert.Equal(t, []string{CodeString}, codes(errs))
}

func TestRules_EachItem(t *testing.T) {
	out, errs := run(t, EachItem(IsInt()), []any{float64(1), float64(2)})
	require.Empty(t, errs)
	assert.Equal(t, []any{int64(1), int64(2)}, out)

	out, errs = run(t, EachItem(IsInt()), []any{float64(1), "x", "y"})
	assert.Nil(t, out)
	require.Len(t, errs, 2)
	assert.Equal(t, 1, errs[0].Params["index"])
	assert.Equal(t, 2, errs[1].Params["index"])

	_, errs = run(t, EachItem(IsInt()), "x")
	assert.Equal(t, []string{CodeArray}, codes(errs))
}

func TestRules_CaptureAndCustom(t *testing.T) {
	upper := Custom("upper", func(v any, _ *Context) Result {
		return Result{Value: strings.ToUpper(v.(string))}
	})
	p := Compile(map[string]Rule{"name": And(IsString(), Capture("raw", Success()), upper)})
	v := NewValidator(p, nil)

	require.True(t, v.Validate(context.Background(), map[string]any{"name": "ada"}))
	assert.Equal(t, []string{"raw", "name"}, v.Captures().Keys())
	name, _ := v.Captures().Get("name")
	assert.Equal(t, "ADA", name)
}

func TestDefaultFormatter(t *testing.T) {
	f := DefaultFormatter{}
	assert.Equal(t, "length must be between 1 and 3",
		f.Format(Error{Code: CodeLengthRange, Params: map[string]any{"min": 1, "max": 3}}))
	assert.Equal(t, "is invalid", f.Format(Error{Code: "whatever"}))

	custom := DefaultFormatter{Messages: map[string]string{CodeRequired: "ne peut pas être vide"}}
	assert.Equal(t, "ne peut pas être vide", custom.Format(Error{Code: CodeRequired}))
}
