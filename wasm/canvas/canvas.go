//go:build js && wasm

package canvas

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"syscall/js"

	field "github.com/esimov/pixel-particles/particle-field"
)

// Canvas wraps an HTML canvas element and its 2D context.
type Canvas struct {
	window js.Value
	doc    js.Value
	canvas js.Value
	ctx    js.Value

	width, height int
	styles        map[field.RGB]string
	tick          js.Func
	move          js.Func
}

// NewCanvas looks up the canvas element with the given id.
func NewCanvas(id string) (*Canvas, error) {
	c := &Canvas{
		window: js.Global(),
		styles: make(map[field.RGB]string),
	}
	c.doc = c.window.Get("document")
	c.canvas = c.doc.Call("getElementById", id)
	if c.canvas.IsNull() || c.canvas.IsUndefined() {
		return nil, fmt.Errorf("canvas element %q not found", id)
	}
	c.ctx = c.canvas.Call("getContext", "2d")
	return c, nil
}

// Resize sets the drawing buffer size of the canvas.
func (c *Canvas) Resize(width, height int) {
	c.width, c.height = width, height
	c.canvas.Set("width", width)
	c.canvas.Set("height", height)
}

// Attribute returns a data-* attribute of the canvas element.
func (c *Canvas) Attribute(name string) string {
	v := c.canvas.Call("getAttribute", "data-"+name)
	if v.IsNull() {
		return ""
	}
	return v.String()
}

// Fetch downloads a file relative to the page location.
func (c *Canvas) Fetch(path string) ([]byte, error) {
	u, err := url.Parse(c.window.Get("location").Get("href").String())
	if err != nil {
		return nil, err
	}
	ref, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	resp, err := http.Get(u.ResolveReference(ref).String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: %s", path, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// Start listens to mouse moves and draws a frame on every animation frame.
// Both callbacks run on the browser event loop, so the loop is never entered
// concurrently.
func (c *Canvas) Start(loop *field.Loop) {
	c.move = js.FuncOf(func(this js.Value, args []js.Value) any {
		rect := c.canvas.Call("getBoundingClientRect")
		ev := args[0]
		loop.Feed(field.PointerEvent{
			X: ev.Get("clientX").Float() - rect.Get("left").Float(),
			Y: ev.Get("clientY").Float() - rect.Get("top").Float(),
		})
		return nil
	})
	c.window.Call("addEventListener", "mousemove", c.move)

	c.tick = js.FuncOf(func(this js.Value, args []js.Value) any {
		c.window.Call("requestAnimationFrame", c.tick)
		c.draw(loop.Tick())
		return nil
	})
	c.window.Call("requestAnimationFrame", c.tick)
}

// Stop releases the callbacks registered by Start.
func (c *Canvas) Stop() {
	c.window.Call("removeEventListener", "mousemove", c.move)
	c.move.Release()
	c.tick.Release()
}

// Alert calls the `alert` Javascript function
func (c *Canvas) Alert(msg string) {
	c.window.Call("alert", msg)
}

// Log calls the `console.log` Javascript function
func (c *Canvas) Log(args ...any) {
	c.window.Get("console").Call("log", args...)
}

func (c *Canvas) draw(cmds []field.DrawCommand) {
	c.ctx.Call("clearRect", 0, 0, c.width, c.height)
	for _, cmd := range cmds {
		c.ctx.Set("fillStyle", c.style(cmd.Color))
		c.ctx.Call("beginPath")
		c.ctx.Call("arc", cmd.X, cmd.Y, cmd.Radius, 0, 2*math.Pi)
		c.ctx.Call("closePath")
		c.ctx.Call("fill")
	}
}

func (c *Canvas) style(rgb field.RGB) string {
	s, ok := c.styles[rgb]
	if !ok {
		s = fmt.Sprintf("rgb(%d,%d,%d)", rgb.R, rgb.G, rgb.B)
		c.styles[rgb] = s
	}
	return s
}
