// Package health reports whether the feed is serving.
//
// A Monitor watches lifecycle components through their Health method and
// runs named checks for conditions that are not components. The aggregate
// is unhealthy when any part is unhealthy and degraded when any part is
// degraded:
//
//	monitor := health.NewMonitor("vtafeed")
//	monitor.Watch(group.Discoverables()...)
//	monitor.AddCheck("scoring_link", func() health.Status {
//	    if p.State().Link.Connected {
//	        return health.NewHealthy("", "scoring software connected")
//	    }
//	    return health.NewDegraded("", "no connection notice from scoring software")
//	})
//	mux.Handle("/health", monitor.Handler())
//
// Error text from components is sanitized before it is exposed: URLs, paths,
// IP addresses, ports and credentials are masked.
package health
