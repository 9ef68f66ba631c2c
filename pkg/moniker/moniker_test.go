package moniker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNormalizes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain path", in: "sales/orders", want: "sales/orders"},
		{name: "scheme prefix stripped", in: "moniker://sales/orders", want: "sales/orders"},
		{name: "leading separator", in: "/sales/orders", want: "sales/orders"},
		{name: "trailing separator", in: "sales/orders/", want: "sales/orders"},
		{name: "both separators", in: "/sales/orders/", want: "sales/orders"},
		{name: "surrounding whitespace", in: "  sales/orders ", want: "sales/orders"},
		{name: "scheme and separators", in: "moniker:///sales/orders/", want: "sales/orders"},
		{name: "empty is root", in: "", want: ""},
		{name: "bare scheme is root", in: "moniker://", want: ""},
		{name: "single separator is root", in: "/", want: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := New(tt.in)
			assert.Equal(t, tt.want, m.Path())
			assert.Equal(t, Scheme+tt.want, m.URI())
			assert.Equal(t, Scheme+tt.want, m.String())
			// Feeding the URI back in lands on the same path.
			assert.Equal(t, m.Path(), New(m.URI()).Path())
		})
	}
}

func TestMonikerNavigation(t *testing.T) {
	t.Parallel()

	root := New("")
	require.True(t, root.IsRoot())
	assert.Nil(t, root.Segments())

	_, ok := root.Parent()
	assert.False(t, ok, "root has no parent")

	sales := root.Child("sales")
	assert.Equal(t, "sales", sales.Path())
	assert.False(t, sales.IsRoot())

	orders := sales.Child("orders/2024")
	assert.Equal(t, "sales/orders/2024", orders.Path())
	assert.Equal(t, []string{"sales", "orders", "2024"}, orders.Segments())

	parent, ok := orders.Parent()
	require.True(t, ok)
	assert.Equal(t, "sales/orders", parent.Path())

	top, ok := sales.Parent()
	require.True(t, ok)
	assert.True(t, top.IsRoot())

	// Empty and separator-only children are no-ops.
	assert.True(t, orders.Equal(orders.Child("")))
	assert.True(t, orders.Equal(orders.Child("/")))

	// Child sub-paths are trimmed before joining.
	assert.Equal(t, "sales/eu", sales.Child("/eu/").Path())
}

func TestMonikerEqual(t *testing.T) {
	t.Parallel()

	a := New("sales/orders")
	b := New("moniker://sales/orders/")
	c := New("sales/refunds")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))

	// The bound client does not participate in equality.
	bound := New("sales/orders", WithClient(nil))
	assert.True(t, a.Equal(bound))
}
