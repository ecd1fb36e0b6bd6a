package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePHPVersion(t *testing.T) {
	tests := []struct {
		input    string
		expected PHPVersion
		wantErr  bool
	}{
		{"", PHPVersionAuto, false},
		{"Auto", PHPVersionAuto, false},
		{"5.3", PHPVersion53, false},
		{"5.3.29", PHPVersion53, false},
		{"5.4", PHPVersion54, false},
		{"5.6.40", PHPVersion54, false},
		{"7.4", PHPVersion54, false},
		{"8.2.1", PHPVersion54, false},
		{"4.4", PHPVersionAuto, true},
		{"php", PHPVersionAuto, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := ParsePHPVersion(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestScope(t *testing.T) {
	global := Scope{NamespaceName: "Shop"}
	assert.True(t, global.IsGlobal())
	assert.Equal(t, "<global>", global.String())

	method := Scope{NamespaceName: "Shop", ClassName: "Shop\\Order", MethodName: "total"}
	assert.False(t, method.IsGlobal())
	assert.Equal(t, "Shop\\Order::total", method.Key())
	assert.Equal(t, "Shop\\Order::total", method.String())

	fn := Scope{NamespaceName: "Shop", MethodName: "helper"}
	assert.Equal(t, "Shop\\helper", fn.Key())
	assert.Equal(t, "Shop\\helper", fn.String())
	assert.NotEqual(t, method.Key(), Scope{ClassName: "Shop\\Cart", MethodName: "total"}.Key())
}

func TestNameHelpers(t *testing.T) {
	assert.Equal(t, "Order", QualifyName("", "\\Order"))
	assert.Equal(t, "Shop\\Order", QualifyName("\\Shop\\", "Order"))
	assert.Equal(t, "Order", ShortName("\\Shop\\Model\\Order"))
	assert.Equal(t, "Order", ShortName("Order"))
	assert.Equal(t, "Shop\\Model", NamespaceOf("\\Shop\\Model\\Order"))
	assert.Empty(t, NamespaceOf("Order"))
}

func TestImports_Qualify(t *testing.T) {
	im := NewImports("\\App\\Http")
	im.Add("\\Shop\\Model\\Order", "")
	im.Add("Shop\\Cart", "Basket")

	tests := []struct {
		name     string
		expected string
	}{
		{"Order", "Shop\\Model\\Order"},
		{"order", "Shop\\Model\\Order"},
		{"Basket", "Shop\\Cart"},
		{"Order\\Line", "Shop\\Model\\Order\\Line"},
		{"Controller", "App\\Http\\Controller"},
		{"\\Controller", "Controller"},
		{"namespace\\Request", "App\\Http\\Request"},
		{"?String", "string"},
		{"Self", "self"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, im.Qualify(tt.name))
		})
	}

	clone := im.Clone()
	clone.Add("Other\\Thing", "Order")
	assert.Equal(t, "Shop\\Model\\Order", im.Qualify("Order"), "clone aliases are independent")
	assert.Equal(t, "Other\\Thing", clone.Qualify("Order"))
}

func TestIsPrimitiveType(t *testing.T) {
	assert.True(t, IsPrimitiveType("int"))
	assert.True(t, IsPrimitiveType("?Array"))
	assert.False(t, IsPrimitiveType("Order"))
	assert.True(t, IsRelativeClassName("PARENT"))
	assert.False(t, IsRelativeClassName("Parents"))
}
