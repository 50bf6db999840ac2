package observability

// Exported for tests in observability_test.
var ProcessResource = processResource
