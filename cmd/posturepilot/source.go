package main

import "github.com/ayusman/posturepilot/internal/pose"

// tappedSource passes every frame to fn before the controller sees it.
type tappedSource struct {
	pose.Source
	fn func(pose.Frame)
}

func tap(src pose.Source, fn func(pose.Frame)) pose.Source {
	return &tappedSource{Source: src, fn: fn}
}

func (s *tappedSource) Start(onResult func(pose.Frame)) error {
	return s.Source.Start(func(f pose.Frame) {
		s.fn(f)
		onResult(f)
	})
}
