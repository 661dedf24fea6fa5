package swim

import (
	"net/url"
	"strings"
)

// ResolveUri resolves `relative` against `base`. Unparsable input is returned unchanged.
// The `swim` and `swims` schemes resolve to `ws` and `wss`, the schemes of their channel.
func ResolveUri(base string, relative string) string {
	baseUrl, err := url.Parse(base)
	if err != nil {
		return relative
	}
	relativeUrl, err := url.Parse(relative)
	if err != nil {
		return relative
	}
	relativeUrl.Scheme = transportScheme(relativeUrl.Scheme)
	return baseUrl.ResolveReference(relativeUrl).String()
}

// UnresolveUri is the inverse of `ResolveUri`. An absolute uri on the same authority as `base`
// becomes host relative, e.g. `ws://localhost:9001/house#light` -> `/house#light`.
func UnresolveUri(base string, absolute string) string {
	baseUrl, err := url.Parse(base)
	if err != nil {
		return absolute
	}
	absoluteUrl, err := url.Parse(absolute)
	if err != nil {
		return absolute
	}
	if !absoluteUrl.IsAbs() ||
		!strings.EqualFold(transportScheme(baseUrl.Scheme), transportScheme(absoluteUrl.Scheme)) ||
		!strings.EqualFold(baseUrl.Host, absoluteUrl.Host) {
		return absolute
	}

	relativeUrl := *absoluteUrl
	relativeUrl.Scheme = ""
	relativeUrl.Opaque = ""
	relativeUrl.User = nil
	relativeUrl.Host = ""

	basePath := baseUrl.Path
	if strings.HasSuffix(basePath, "/") && 1 < len(basePath) && strings.HasPrefix(relativeUrl.Path, basePath) {
		relativeUrl.Path = strings.TrimPrefix(relativeUrl.Path, basePath)
		relativeUrl.RawPath = ""
	}
	if relativeUrl.Path == "" && relativeUrl.RawQuery == "" && relativeUrl.Fragment == "" {
		relativeUrl.Path = "/"
	}
	return relativeUrl.String()
}

// ExtractHostUri returns the scheme and authority of a node uri. The `swim` and `swims`
// schemes map to `ws` and `wss`.
func ExtractHostUri(nodeUri string) string {
	nodeUrl, err := url.Parse(nodeUri)
	if err != nil {
		return ""
	}
	hostUrl := url.URL{
		Scheme: transportScheme(nodeUrl.Scheme),
		User:   nodeUrl.User,
		Host:   nodeUrl.Host,
	}
	return hostUrl.String()
}

func transportScheme(scheme string) string {
	switch strings.ToLower(scheme) {
	case "swim":
		return "ws"
	case "swims":
		return "wss"
	default:
		return scheme
	}
}

// http hosts are served with the long poll transport
func isHttpUri(hostUri string) bool {
	return strings.HasPrefix(hostUri, "http:") || strings.HasPrefix(hostUri, "https:")
}
