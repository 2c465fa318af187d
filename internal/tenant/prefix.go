package tenant

// PrefixKey creates a namespaced cache key per tenant.
func PrefixKey(scope Scope, key string) string {
	if scope.IsZero() {
		return key
	}
	return "org:" + scope.OrganizationID.String() + ":" + key
}
