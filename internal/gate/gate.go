// Copyright The Notary Project Authors.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gate throttles submissions to a timestamp authority.
//
// A Gate admits its first caller immediately. Every later caller is
// admitted once the configured interval has passed since the previous
// successful submission. One Gate can be shared by concurrent workers of
// the same run; they are admitted one at a time.
package gate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Gate is a shared submission gate.
type Gate struct {
	limiter *rate.Limiter
	slot    chan struct{}
}

// New creates a Gate admitting one successful submission per interval. A
// non-positive interval disables throttling.
func New(interval time.Duration) *Gate {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Gate{
		limiter: rate.NewLimiter(limit, 1),
		slot:    make(chan struct{}, 1),
	}
}

// Admit blocks until the caller is admitted or ctx is done. The caller
// must call release once its submission is over, reporting whether it
// succeeded. The interval before the next admission starts only after a
// successful submission.
func (g *Gate) Admit(ctx context.Context) (release func(submitted bool), err error) {
	if g.limiter.Limit() == rate.Inf {
		return func(bool) {}, nil
	}
	select {
	case g.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	for {
		d := g.delay(time.Now())
		if d == 0 {
			break
		}
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < d {
			<-g.slot
			return nil, context.DeadlineExceeded
		}
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			<-g.slot
			return nil, ctx.Err()
		}
	}
	var once sync.Once
	return func(submitted bool) {
		once.Do(func() {
			if submitted {
				g.limiter.Allow()
			}
			<-g.slot
		})
	}, nil
}

// delay reports how long a caller arriving at now would wait, without
// consuming an admission.
func (g *Gate) delay(now time.Time) time.Duration {
	r := g.limiter.ReserveN(now, 1)
	defer r.CancelAt(now)
	return r.DelayFrom(now)
}
