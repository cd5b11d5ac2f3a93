package mesh

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"gonum.org/v1/gonum/spatial/r3"
)

// ImageFormat is an output encoding for rendered views.
type ImageFormat string

const (
	FormatPNG  ImageFormat = "png"
	FormatSVG  ImageFormat = "svg"
	FormatWebP ImageFormat = "webp"
)

// ContentType returns the MIME type of the format.
func (f ImageFormat) ContentType() string {
	switch f {
	case FormatSVG:
		return "image/svg+xml"
	case FormatWebP:
		return "image/webp"
	}
	return "image/png"
}

// ParseImageFormat accepts png, svg or webp in any case.
func ParseImageFormat(s string) (ImageFormat, error) {
	switch f := ImageFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatPNG, FormatSVG, FormatWebP:
		return f, nil
	}
	return "", fmt.Errorf("unknown image format %q", s)
}

// SceneRenderer draws colored meshes with an orthographic camera. Faces
// are depth-sorted back to front and lit from the camera direction on both
// sides, so mirrored meshes with inverted winding shade correctly.
type SceneRenderer struct {
	Meshes     []*Mesh
	Azimuth    float64 // Degrees about +Z
	Elevation  float64 // Degrees above the XY plane
	Width      float64 // Canvas units; one unit is one pixel in raster output
	Height     float64
	Padding    float64 // Fraction of the projected extent added on each side
	Background color.NRGBA
	Legend     []string
}

// NewSceneRenderer creates a renderer for meshes with the camera and size
// taken from view. Zero sizes fall back to 1024x768.
func NewSceneRenderer(meshes []*Mesh, view ViewConfig) *SceneRenderer {
	w, h := float64(view.Width), float64(view.Height)
	if w <= 0 {
		w = 1024
	}
	if h <= 0 {
		h = 768
	}
	return &SceneRenderer{
		Meshes:     meshes,
		Azimuth:    view.Azimuth,
		Elevation:  view.Elevation,
		Width:      w,
		Height:     h,
		Padding:    0.05,
		Background: color.NRGBA{R: 255, G: 255, B: 255, A: 255},
	}
}

// camera holds the orthonormal view basis.
type camera struct {
	right, up, view r3.Vec
}

func newCamera(azimuthDeg, elevationDeg float64) camera {
	az := azimuthDeg * math.Pi / 180
	el := elevationDeg * math.Pi / 180
	ca, sa := math.Cos(az), math.Sin(az)
	ce, se := math.Cos(el), math.Sin(el)
	return camera{
		view:  r3.Vec{X: ce * ca, Y: ce * sa, Z: se},
		right: r3.Vec{X: -sa, Y: ca},
		up:    r3.Vec{X: -se * ca, Y: -se * sa, Z: ce},
	}
}

func (c camera) project(p r3.Vec) (x, y, depth float64) {
	return r3.Dot(p, c.right), r3.Dot(p, c.up), r3.Dot(p, c.view)
}

// shadedFace is one projected triangle ready to draw.
type shadedFace struct {
	pts   [3]orb.Point
	depth float64
	fill  color.RGBA
}

// faces projects and shades every triangle of every mesh, sorted far to near.
func (r *SceneRenderer) faces(cam camera) []shadedFace {
	var out []shadedFace
	for _, m := range r.Meshes {
		normals := m.Normals
		if len(normals) != len(m.Vertices) {
			normals = ComputeVertexNormals(m)
		}
		base := m.Color
		if base.A == 0 {
			base = ReferenceColor
		}
		for _, f := range m.Faces {
			var sf shadedFace
			var n r3.Vec
			for k, idx := range f {
				x, y, d := cam.project(m.Vertices[idx])
				sf.pts[k] = orb.Point{x, y}
				sf.depth += d / 3
				n = r3.Add(n, normals[idx])
			}
			intensity := 0.25
			if l := r3.Norm(n); l > 0 {
				intensity += 0.75 * math.Abs(r3.Dot(r3.Scale(1/l, n), cam.view))
			}
			sf.fill = shade(base, intensity)
			out = append(out, sf)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].depth < out[j].depth })
	return out
}

// shade darkens c toward black by the Lambert intensity (0..1).
func shade(c color.NRGBA, intensity float64) color.RGBA {
	base, _ := colorful.MakeColor(color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255})
	lit := colorful.Color{}.BlendRgb(base, intensity).Clamped()
	rr, gg, bb := lit.RGB255()
	return nrgbaToRGBA(color.NRGBA{R: rr, G: gg, B: bb, A: c.A})
}

// nrgbaToRGBA converts color.NRGBA to color.RGBA by premultiplying alpha
// This is needed for the canvas library which expects premultiplied RGBA
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{0, 0, 0, 0}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	alpha32 := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha32) / 255),
		G: uint8((uint32(c.G) * alpha32) / 255),
		B: uint8((uint32(c.B) * alpha32) / 255),
		A: c.A,
	}
}

// projectedBounds returns the padded 2D extent of the faces.
func (r *SceneRenderer) projectedBounds(faces []shadedFace) orb.Bound {
	mp := make(orb.MultiPoint, 0, len(faces)*3)
	for _, f := range faces {
		mp = append(mp, f.pts[:]...)
	}
	b := mp.Bound()
	extent := math.Max(b.Max[0]-b.Min[0], b.Max[1]-b.Min[1])
	if extent == 0 {
		extent = 1
	}
	return b.Pad(extent * r.Padding)
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// renderToCanvas draws the background and every face (shared by SVG and PNG).
func (r *SceneRenderer) renderToCanvas(renderer canvasRenderer) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.Background)}
	bgStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	renderer.RenderPath(canvas.Rectangle(r.Width, r.Height), bgStyle, canvas.Identity)

	cam := newCamera(r.Azimuth, r.Elevation)
	faces := r.faces(cam)
	if len(faces) == 0 {
		return
	}

	b := r.projectedBounds(faces)
	bw, bh := b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]
	scale := math.Min(r.Width/bw, r.Height/bh)
	offX := (r.Width - bw*scale) / 2
	offY := (r.Height - bh*scale) / 2
	toCanvas := func(p orb.Point) (float64, float64) {
		return (p[0]-b.Min[0])*scale + offX, (p[1]-b.Min[1])*scale + offY
	}

	for _, f := range faces {
		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: f.fill}
		// A hairline in the fill color hides seams between neighbours.
		style.Stroke = canvas.Paint{Color: f.fill}
		style.StrokeWidth = 0.3

		cp := &canvas.Path{}
		for i, pt := range f.pts {
			x, y := toCanvas(pt)
			if i == 0 {
				cp.MoveTo(x, y)
			} else {
				cp.LineTo(x, y)
			}
		}
		cp.Close()
		renderer.RenderPath(cp, style, canvas.Identity)
	}
}

// RenderToSVG writes the scene as SVG.
func (r *SceneRenderer) RenderToSVG(w io.Writer) error {
	svgRenderer := svg.New(w, r.Width, r.Height, nil)
	r.renderToCanvas(svgRenderer)
	if err := svgRenderer.Close(); err != nil {
		return &VisualizationError{Op: "render svg", Err: err}
	}
	return nil
}

// RenderImage rasterizes the scene, legend included.
func (r *SceneRenderer) RenderImage() image.Image {
	rast := rasterizer.New(r.Width, r.Height, canvas.DPMM(1), canvas.DefaultColorSpace)
	r.renderToCanvas(rast)
	r.drawLegend(rast)
	return rast
}

// RenderToPNG writes the scene as PNG.
func (r *SceneRenderer) RenderToPNG(w io.Writer) error {
	if err := png.Encode(w, r.RenderImage()); err != nil {
		return &VisualizationError{Op: "encode png", Err: err}
	}
	return nil
}

// RenderToWebP writes the scene as lossless WebP.
func (r *SceneRenderer) RenderToWebP(w io.Writer) error {
	if err := nativewebp.Encode(w, r.RenderImage(), nil); err != nil {
		return &VisualizationError{Op: "encode webp", Err: err}
	}
	return nil
}

// Render writes the scene in the requested format.
func (r *SceneRenderer) Render(w io.Writer, format ImageFormat) error {
	switch format {
	case FormatSVG:
		return r.RenderToSVG(w)
	case FormatWebP:
		return r.RenderToWebP(w)
	case FormatPNG:
		return r.RenderToPNG(w)
	}
	return &VisualizationError{Op: "render", Err: fmt.Errorf("unknown image format %q", format)}
}

// drawLegend prints one line per mesh in its display color, then any extra
// legend lines, in the top-left corner.
func (r *SceneRenderer) drawLegend(img draw.Image) {
	y := 18
	for _, m := range r.Meshes {
		c := nrgbaToRGBA(m.Color)
		if m.Color.A == 0 {
			c = nrgbaToRGBA(ReferenceColor)
		}
		drawSwatch(img, 10, y-10, 10, c)
		drawText(img, 26, y, m.Name, color.RGBA{A: 255})
		y += 16
	}
	for _, line := range r.Legend {
		drawText(img, 10, y, line, color.RGBA{R: 60, G: 60, B: 60, A: 255})
		y += 16
	}
}

func drawSwatch(img draw.Image, x, y, size int, c color.RGBA) {
	draw.Draw(img, image.Rect(x, y, x+size, y+size), image.NewUniform(c), image.Point{}, draw.Src)
}

func drawText(img draw.Image, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
