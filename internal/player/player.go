package player

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultHideDelay is how long the controls stay visible after the last
// pointer activity while playing.
const DefaultHideDelay = 3 * time.Second

// DefaultDownloadName is the fixed filename used when saving the video.
const DefaultDownloadName = "chirp-video.mp4"

// defaultUnmuteVolume is applied when unmuting and the remembered volume was
// zero, so unmuting is always audible.
const defaultUnmuteVolume = 1.0

// Speed is a playback rate from the fixed set offered by the settings menu.
type Speed float64

// Speeds lists the selectable playback rates.
func Speeds() []Speed {
	return []Speed{0.25, 0.5, 0.75, 1, 1.25, 1.5, 1.75, 2}
}

// Quality is a rendition label from the fixed set offered by the settings
// menu. Selecting one only changes the displayed label; the media source is
// not swapped.
type Quality string

// Qualities lists the selectable quality labels.
func Qualities() []Quality {
	return []Quality{"auto", "1080p", "720p", "480p", "360p"}
}

// Engine is the underlying playback resource. Play may be rejected
// asynchronously by the resource; every other operation is fire-and-forget.
type Engine interface {
	Play(ctx context.Context) error
	Pause()
	SetCurrentTime(seconds float64)
	SetVolume(v float64)
	SetMuted(muted bool)
	SetRate(rate float64)
}

// Fullscreener requests fullscreen transitions on the player container.
type Fullscreener interface {
	Enter() error
	Exit() error
}

// Saver performs a client-side save of the media at url under filename.
type Saver interface {
	Save(url, filename string) error
}

// State is a snapshot of everything the player UI renders.
type State struct {
	Playing     bool
	Muted       bool
	Volume      float64
	CurrentTime float64
	Duration    float64
	Fullscreen  bool

	ShowControls bool
	Speed        Speed
	Quality      Quality

	ShowSettings    bool
	ShowSpeedMenu   bool
	ShowQualityMenu bool
}

type stopper interface {
	Stop() bool
}

// Player owns all mutable state of one playback session and mediates every
// state-changing command against the engine. One Player exclusively owns one
// engine.
type Player struct {
	mu sync.Mutex

	url        string
	engine     Engine
	fullscreen Fullscreener
	saver      Saver
	log        zerolog.Logger

	state      State
	lastVolume float64

	hideDelay time.Duration
	hideTimer stopper
	newTimer  func(d time.Duration, fn func()) stopper
	closed    bool
}

// New creates a player for one media URL. The engine is attached later, when
// the underlying resource mounts; commands before that are no-ops.
func New(url string, logger zerolog.Logger) *Player {
	return &Player{
		url: url,
		log: logger.With().Str("component", "player").Logger(),
		state: State{
			Volume:       1.0,
			ShowControls: true,
			Speed:        1,
			Quality:      "auto",
		},
		lastVolume: 1.0,
		hideDelay:  DefaultHideDelay,
		newTimer: func(d time.Duration, fn func()) stopper {
			return time.AfterFunc(d, fn)
		},
	}
}

// AttachEngine binds the playback resource. Called once when the resource
// mounts.
func (p *Player) AttachEngine(e Engine) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.engine = e
}

// SetFullscreener binds the container's fullscreen surface.
func (p *Player) SetFullscreener(f Fullscreener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fullscreen = f
}

// SetSaver binds the download sink.
func (p *Player) SetSaver(s Saver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saver = s
}

// State returns a snapshot of the current playback state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Close tears the player down, cancelling any pending auto-hide timer.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.stopHideTimerLocked()
}

// PlayPause toggles playback. The flip is optimistic: a rejected Play is
// logged and the state self-corrects on the next resource event.
func (p *Player) PlayPause(ctx context.Context) {
	p.mu.Lock()
	if p.engine == nil {
		p.mu.Unlock()
		return
	}
	engine := p.engine
	p.state.Playing = !p.state.Playing
	playing := p.state.Playing
	p.mu.Unlock()

	if playing {
		if err := engine.Play(ctx); err != nil {
			p.log.Debug().Err(err).Msg("play request rejected by engine")
		}
	} else {
		engine.Pause()
	}
}

// ToggleMute flips the muted flag. Muting remembers the current volume;
// unmuting restores it, falling back to an audible default when the
// remembered volume was zero.
func (p *Player) ToggleMute() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.state.Muted {
		p.lastVolume = p.state.Volume
		p.state.Muted = true
		if p.engine != nil {
			p.engine.SetMuted(true)
		}
		return
	}

	restored := p.lastVolume
	if restored == 0 {
		restored = defaultUnmuteVolume
	}
	p.state.Muted = false
	p.state.Volume = restored
	if p.engine != nil {
		p.engine.SetMuted(false)
		p.engine.SetVolume(restored)
	}
}

// SetVolume sets the volume in [0,1]. Zero volume implies muted.
func (p *Player) SetVolume(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Volume = v
	p.state.Muted = v == 0
	if p.engine != nil {
		p.engine.SetVolume(v)
		p.engine.SetMuted(p.state.Muted)
	}
}

// Seek jumps to a fraction of the total duration, as computed from a pointer
// position on the track. No-op while the duration is still unknown.
func (p *Player) Seek(fraction float64) {
	if fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Duration == 0 {
		return
	}
	p.state.CurrentTime = fraction * p.state.Duration
	if p.engine != nil {
		p.engine.SetCurrentTime(p.state.CurrentTime)
	}
}

// ToggleFullscreen requests the container enter or exit fullscreen. The flag
// mirrors the requested transition, not the confirmed browser state.
func (p *Player) ToggleFullscreen() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fullscreen == nil {
		return
	}

	var err error
	if p.state.Fullscreen {
		err = p.fullscreen.Exit()
	} else {
		err = p.fullscreen.Enter()
	}
	if err != nil {
		p.log.Debug().Err(err).Msg("fullscreen request failed")
	}
	p.state.Fullscreen = !p.state.Fullscreen
}

// SetSpeed changes the playback rate. Rate changes reset audio parameters on
// some engines, so the pre-change volume and mute are re-applied, and
// playback resumes if it was running. Closes the settings surface.
func (p *Player) SetSpeed(ctx context.Context, s Speed) {
	if !validSpeed(s) {
		return
	}

	p.mu.Lock()
	engine := p.engine
	snap := p.state
	p.state.Speed = s
	p.closeSettingsLocked()
	p.mu.Unlock()

	if engine == nil {
		return
	}
	engine.SetRate(float64(s))
	engine.SetVolume(snap.Volume)
	engine.SetMuted(snap.Muted)
	if snap.Playing {
		if err := engine.Play(ctx); err != nil {
			p.log.Debug().Err(err).Msg("resume after rate change rejected by engine")
		}
	}
}

// SetQuality changes the displayed quality label with the same
// snapshot-and-restore discipline as a rate change. Closes the settings
// surface.
func (p *Player) SetQuality(ctx context.Context, q Quality) {
	if !validQuality(q) {
		return
	}

	p.mu.Lock()
	engine := p.engine
	snap := p.state
	p.state.Quality = q
	p.closeSettingsLocked()
	p.mu.Unlock()

	if engine == nil {
		return
	}
	engine.SetVolume(snap.Volume)
	engine.SetMuted(snap.Muted)
	if snap.Playing {
		if err := engine.Play(ctx); err != nil {
			p.log.Debug().Err(err).Msg("resume after quality change rejected by engine")
		}
	}
}

// Download saves the original media URL under the fixed download filename and
// closes the settings surface.
func (p *Player) Download() {
	p.mu.Lock()
	saver := p.saver
	url := p.url
	p.closeSettingsLocked()
	p.mu.Unlock()

	if saver == nil {
		return
	}
	if err := saver.Save(url, DefaultDownloadName); err != nil {
		p.log.Warn().Err(err).Msg("media download failed")
	}
}

// OnTimeUpdate syncs the position reported by the engine.
func (p *Player) OnTimeUpdate(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Duration > 0 && t > p.state.Duration {
		t = p.state.Duration
	}
	if t < 0 {
		t = 0
	}
	p.state.CurrentTime = t
}

// OnLoadedMetadata records the duration once the engine reports it.
func (p *Player) OnLoadedMetadata(duration float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Duration = duration
	if p.state.CurrentTime > duration {
		p.state.CurrentTime = duration
	}
}

// OnEnded stops playback and brings the controls back.
func (p *Player) OnEnded() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Playing = false
	p.state.ShowControls = true
	p.stopHideTimerLocked()
}

// OnPointerActivity shows the controls and re-arms the auto-hide timer. Every
// new activity cancels the previous timer, so the controls hide a full delay
// after the last activity. The controls only hide while playing with the
// settings surface closed.
func (p *Player) OnPointerActivity() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.state.ShowControls = true
	p.stopHideTimerLocked()
	p.hideTimer = p.newTimer(p.hideDelay, p.hideControls)
}

func (p *Player) hideControls() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || !p.state.Playing || p.settingsOpenLocked() {
		return
	}
	p.state.ShowControls = false
}

// OpenSettings opens the root settings panel with both submenus closed.
func (p *Player) OpenSettings() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.ShowSettings = true
	p.state.ShowSpeedMenu = false
	p.state.ShowQualityMenu = false
}

// CloseSettings dismisses the whole settings surface, submenus included.
// Also the handler for a click outside the panel.
func (p *Player) CloseSettings() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeSettingsLocked()
}

// OpenSpeedMenu switches the settings surface to the speed submenu.
func (p *Player) OpenSpeedMenu() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.state.ShowSettings {
		return
	}
	p.state.ShowSpeedMenu = true
	p.state.ShowQualityMenu = false
}

// OpenQualityMenu switches the settings surface to the quality submenu.
func (p *Player) OpenQualityMenu() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.state.ShowSettings {
		return
	}
	p.state.ShowQualityMenu = true
	p.state.ShowSpeedMenu = false
}

func (p *Player) closeSettingsLocked() {
	p.state.ShowSettings = false
	p.state.ShowSpeedMenu = false
	p.state.ShowQualityMenu = false
}

func (p *Player) settingsOpenLocked() bool {
	return p.state.ShowSettings || p.state.ShowSpeedMenu || p.state.ShowQualityMenu
}

func (p *Player) stopHideTimerLocked() {
	if p.hideTimer != nil {
		p.hideTimer.Stop()
		p.hideTimer = nil
	}
}

func validSpeed(s Speed) bool {
	for _, v := range Speeds() {
		if s == v {
			return true
		}
	}
	return false
}

func validQuality(q Quality) bool {
	for _, v := range Qualities() {
		if q == v {
			return true
		}
	}
	return false
}
