// Package sources contains the signal producers.
//
// Host-fed sources take values the browser bridge reports over IPC and post
// remediation requests back to it through a RequestQueue. NoiseSource and
// DisplaySource sample locally: the former polls audio frames the host
// reports, the latter counts connected DRM connectors and listens for udev
// hotplug events. Every source claims its slots from the monitor on Start and
// writes Unset before releasing them on Stop.
package sources
