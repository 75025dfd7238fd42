package flipkart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pageWithJSONLD = `<html><head>
<script type="application/ld+json">
{"@type":"Product","name":"Acme Phone (Blue, 128 GB)","sku":"itmf00ba51a2b3c4",
 "offers":{"price":13999,"priceCurrency":"INR","availability":"https://schema.org/InStock"}}
</script>
</head><body>
<span class="B_NuCI">Acme Phone title from DOM</span>
<div class="Nx9bqj">₹14,499</div>
</body></html>`

const pageDOMOnly = `<html><body>
<h1>Acme Toaster</h1>
<div class="_30jeq3">₹2,199</div>
<div class="_3I9_wc">₹2,999</div>
</body></html>`

const pageSoldOut = `<html><body>
<h1>Rare Gadget</h1>
<button>NOTIFY ME</button>
<div>Sold Out</div>
</body></html>`

func TestParseJSONLDWins(t *testing.T) {
	fields := Parse(pageWithJSONLD)

	assert.Equal(t, "http:jsonld", fields.Source)
	require.NotNil(t, fields.Title)
	assert.Equal(t, "Acme Phone (Blue, 128 GB)", *fields.Title)
	require.NotNil(t, fields.ProductID)
	assert.Equal(t, "itmf00ba51a2b3c4", *fields.ProductID)
	require.NotNil(t, fields.Price)
	assert.Equal(t, 13999.0, *fields.Price)
	require.NotNil(t, fields.InStock)
	assert.True(t, *fields.InStock)
	require.NotNil(t, fields.Currency)
	assert.Equal(t, "INR", *fields.Currency)
}

func TestParseDOMFallback(t *testing.T) {
	fields := Parse(pageDOMOnly)

	assert.Equal(t, "http:dom", fields.Source)
	require.NotNil(t, fields.Title)
	assert.Equal(t, "Acme Toaster", *fields.Title)
	require.NotNil(t, fields.Price)
	assert.Equal(t, 2199.0, *fields.Price)
	require.NotNil(t, fields.MRP)
	assert.Equal(t, 2999.0, *fields.MRP)
	require.NotNil(t, fields.InStock)
	assert.True(t, *fields.InStock)
}

func TestParseSoldOut(t *testing.T) {
	fields := Parse(pageSoldOut)

	require.NotNil(t, fields.InStock)
	assert.False(t, *fields.InStock)
	assert.Nil(t, fields.Price)
}
