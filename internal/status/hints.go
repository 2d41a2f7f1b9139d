package status

import "strings"

const (
	hintWeakCA = "The engine rejected a certificate signed with a weak hash (MD5 or SHA1). " +
		"Reissue the CA with a stronger digest or lower the TLS security level in the profile."
	hintLegacyKey = "The private key or PKCS12 file uses an algorithm that is only available in the legacy provider. " +
		"Convert the key with current algorithms or enable the legacy provider for this profile."
)

// hintsFor returns explanatory messages for engine errors users commonly hit.
func hintsFor(msg string) []string {
	var out []string
	lower := strings.ToLower(msg)
	if (strings.HasPrefix(msg, "OpenSSL: error") && strings.HasSuffix(lower, "md too weak")) ||
		strings.Contains(msg, "error:140AB18E") ||
		strings.Contains(msg, "SSL_CA_MD_TOO_WEAK") ||
		strings.Contains(lower, "ca md too weak") {
		out = append(out, hintWeakCA)
	}
	if strings.HasSuffix(msg, "digital envelope routines::unsupported") {
		out = append(out, hintLegacyKey)
	}
	return out
}
