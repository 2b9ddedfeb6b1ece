package csvimport

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
)

func TestNewParser(t *testing.T) {
	t.Run("Header is normalized", func(t *testing.T) {
		p, err := NewParser(strings.NewReader("  Invoice_Ref , Quantity \nA,1"))

		require.NoError(t, err)
		assert.Equal(t, []string{"invoice_ref", "quantity"}, p.Headers())
	})

	t.Run("UTF-8 BOM is stripped", func(t *testing.T) {
		p, err := NewParser(strings.NewReader("\xEF\xBB\xBFname,qty\nA,1"))

		require.NoError(t, err)
		assert.Equal(t, "name", p.Headers()[0])
	})

	t.Run("UTF-16 with BOM is decoded", func(t *testing.T) {
		utf16, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().String("name,qty\nÄpfel,1")
		require.NoError(t, err)

		p, err := NewParser(strings.NewReader(utf16))
		require.NoError(t, err)
		assert.Equal(t, []string{"name", "qty"}, p.Headers())

		row, err := p.ReadRow()
		require.NoError(t, err)
		assert.Equal(t, "Äpfel", row.Get("name"))
	})

	t.Run("Empty file returns error", func(t *testing.T) {
		p, err := NewParser(strings.NewReader(""))

		assert.ErrorIs(t, err, ErrEmptyFile)
		assert.Nil(t, p)
	})

	t.Run("Invalid UTF-8 returns error", func(t *testing.T) {
		_, err := NewParser(strings.NewReader("name\n\xff\xfe\xfd"))

		assert.ErrorIs(t, err, ErrInvalidEncoding)
	})

	t.Run("Custom delimiter", func(t *testing.T) {
		p, err := NewParser(strings.NewReader("a;b;c\n1;2;3"), WithDelimiter(';'))

		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, p.Headers())
	})
}

func TestParser_ReadRow(t *testing.T) {
	p, err := NewParser(strings.NewReader("a,b,c\n1, 2 \n\n4,5,6"))
	require.NoError(t, err)

	row, err := p.ReadRow()
	require.NoError(t, err)
	assert.Equal(t, 2, row.LineNumber)
	assert.Equal(t, "2", row.Get("b"))
	assert.Equal(t, "", row.Get("c"))

	row, err = p.ReadRow()
	require.NoError(t, err)
	assert.Equal(t, "4", row.Get("a"))

	_, err = p.ReadRow()
	assert.Equal(t, io.EOF, err)
}

func TestParser_ReadAllSkipsEmptyRows(t *testing.T) {
	p, err := NewParser(strings.NewReader("a,b\n1,2\n,\n3,4\n"))
	require.NoError(t, err)

	rows, err := p.ReadAll()

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "3", rows[1].Get("a"))
}

func TestParser_MissingHeaders(t *testing.T) {
	p, err := NewParser(strings.NewReader("invoice_ref,quantity\nA,1"))
	require.NoError(t, err)

	assert.Equal(t, []string{"customer_id", "product_id"},
		p.MissingHeaders("invoice_ref", "customer_id", "product_id", "quantity"))
}
