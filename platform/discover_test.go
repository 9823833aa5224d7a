package platform

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/u-root/u-root/pkg/dt"

	"github.com/quard-star/platform/devicetree"
	"github.com/quard-star/platform/devicetree/dttest"
	"github.com/quard-star/platform/sbi"
)

func discover(t *testing.T, root *dt.Node) *Config {
	t.Helper()

	cfg, err := Discover(BootArgs{HartID: 0, FDTAddr: 0x82200000}, dttest.Blob(t, root))
	require.NoError(t, err)

	return cfg
}

func TestDiscoverBoardX(t *testing.T) {
	cfg := discover(t, dttest.Root("BoardX", dttest.CPUs(
		dttest.CPU(0, ""),
		dttest.CPU(1, "disabled"),
		dttest.CPU(2, "okay"),
	)))

	require.Equal(t, []uint32{0, 2}, cfg.Harts.IDs())
	require.Equal(t, 2, cfg.Harts.Len())
	require.EqualValues(t, 2, cfg.Descriptor.HartCount)
	require.Equal(t, "BoardX", cfg.Descriptor.Name())
}

func TestDiscoverBoard(t *testing.T) {
	cfg := discover(t, dttest.Board(8))

	require.Equal(t, []uint32{0, 1, 2, 3, 4, 5, 6, 7}, cfg.Harts.IDs())
	require.Equal(t, dttest.Model, cfg.Descriptor.Name())
	require.EqualValues(t, 0x82200000, cfg.FDTAddr)
	require.NotNil(t, cfg.Tree())
}

func TestDiscoverKeepsDocumentOrder(t *testing.T) {
	cfg := discover(t, dttest.Root("", dttest.CPUs(
		dttest.CPU(5, "okay"),
		dttest.CPU(1, "okay"),
		dttest.CPU(3, "ok"),
	)))

	require.Equal(t, []uint32{5, 1, 3}, cfg.Harts.IDs())

	id, ok := cfg.Harts.Index2ID(1)
	require.True(t, ok)
	require.EqualValues(t, 1, id)

	_, ok = cfg.Harts.Index2ID(3)
	require.False(t, ok)

	idx, ok := cfg.Harts.Index(3)
	require.True(t, ok)
	require.Equal(t, 2, idx)
}

func TestDiscoverSkipsInvalidCPUs(t *testing.T) {
	notCPU := dttest.CPU(9, "okay")
	devicetree.SetProperty(notCPU, devicetree.String("device_type", "memory"))

	noReg := dttest.CPU(10, "okay")
	require.True(t, devicetree.DeleteProperty(noReg, "reg"))

	shortReg := dttest.CPU(11, "okay")
	devicetree.SetProperty(shortReg, dt.Property{Name: "reg", Value: []byte{0, 1}})

	twoCells := dttest.CPU(0, "okay")
	devicetree.SetProperty(twoCells, devicetree.U32("reg", 0, 6))

	tests := []struct {
		name string
		cpus []*dt.Node
		want []uint32
	}{
		{
			name: "disabled between valid",
			cpus: []*dt.Node{dttest.CPU(0, "okay"), dttest.CPU(1, "disabled"), dttest.CPU(2, "okay")},
			want: []uint32{0, 2},
		},
		{
			name: "disabled first",
			cpus: []*dt.Node{dttest.CPU(0, "fail"), dttest.CPU(1, "okay")},
			want: []uint32{1},
		},
		{
			name: "out of range last",
			cpus: []*dt.Node{dttest.CPU(0, "okay"), dttest.CPU(sbi.HartMaskMaxBits, "okay")},
			want: []uint32{0},
		},
		{
			name: "out of range first",
			cpus: []*dt.Node{dttest.CPU(4000, "okay"), dttest.CPU(127, "okay")},
			want: []uint32{127},
		},
		{
			name: "unparsable",
			cpus: []*dt.Node{notCPU, dttest.CPU(1, "okay"), noReg, shortReg, dttest.CPU(2, "okay")},
			want: []uint32{1, 2},
		},
		{
			name: "two reg cells",
			cpus: []*dt.Node{twoCells},
			want: []uint32{6},
		},
		{
			name: "none enabled",
			cpus: []*dt.Node{dttest.CPU(0, "disabled")},
			want: []uint32{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := discover(t, dttest.Root("x", dttest.CPUs(tt.cpus...)))

			require.Equal(t, tt.want, cfg.Harts.IDs())
			require.Equal(t, len(tt.want), cfg.Harts.Len())
			require.EqualValues(t, len(tt.want), cfg.Descriptor.HartCount)
		})
	}
}

func TestDiscoverName(t *testing.T) {
	long := strings.Repeat("q", 100)

	tests := []struct {
		name  string
		model *dt.Property
		want  string
	}{
		{"absent", nil, DefaultName},
		{"short", &dt.Property{Name: "model", Value: []byte("BoardX\x00")}, "BoardX"},
		{"truncated", &dt.Property{Name: "model", Value: append([]byte(long), 0)}, long[:NameSize-1]},
		{"exact fit", &dt.Property{Name: "model", Value: []byte(long[:NameSize-1])}, long[:NameSize-1]},
		{"embedded nul", &dt.Property{Name: "model", Value: []byte("Quard\x00Star\x00")}, "Quard"},
		{"empty", &dt.Property{Name: "model", Value: []byte{0}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := dttest.Root("", dttest.CPUs(dttest.CPU(0, "okay")))
			if tt.model != nil {
				devicetree.SetProperty(root, *tt.model)
			}

			cfg := discover(t, root)
			require.Equal(t, tt.want, cfg.Descriptor.Name())
			require.LessOrEqual(t, len(cfg.Descriptor.Name()), NameSize-1)
		})
	}
}

func TestDefaultDescriptor(t *testing.T) {
	d := DefaultDescriptor()

	require.Equal(t, DefaultName, d.Name())
	require.EqualValues(t, sbi.HartMaskMaxBits, d.HartCount)
	require.EqualValues(t, sbi.DefaultHartStackSize, d.HartStackSize)
	require.Equal(t, sbi.PlatformDefaultFeatures, d.Features)
	require.Equal(t, sbi.FirmwareVersion, d.FirmwareVersion)
	require.Equal(t, uint32(0x1), d.PlatformVersion)
}

func TestHartTableFull(t *testing.T) {
	var h HartTable
	for i := uint32(0); i < sbi.HartMaskMaxBits; i++ {
		require.True(t, h.add(i))
	}

	require.False(t, h.add(0))
	require.Equal(t, sbi.HartMaskMaxBits, h.Len())
	require.True(t, h.Contains(sbi.HartMaskMaxBits-1))
	require.False(t, h.Contains(sbi.HartMaskMaxBits))
}

func TestDiscoverErrors(t *testing.T) {
	_, err := Discover(BootArgs{}, dttest.Blob(t, dttest.Root("BoardX")))
	require.ErrorIs(t, err, ErrNoCPUs)

	_, err = Discover(BootArgs{}, []byte("garbage"))
	require.ErrorIs(t, err, ErrNoRoot)
}

func TestFwPlatformInit(t *testing.T) {
	args := BootArgs{HartID: 1, FDTAddr: 0x82200000, Arg2: 7}

	cfg, fdt := FwPlatformInit(args, dttest.Blob(t, dttest.Board(2)))
	require.Equal(t, args.FDTAddr, fdt)
	require.EqualValues(t, 1, cfg.BootHart)
	require.Equal(t, []uint32{0, 1}, cfg.Harts.IDs())
}

func TestFwPlatformInitHalts(t *testing.T) {
	tests := []struct {
		name string
		blob func(t *testing.T) []byte
	}{
		{"no cpus", func(t *testing.T) []byte { return dttest.Blob(t, dttest.Root("BoardX")) }},
		{"no root", func(*testing.T) []byte { return nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob := tt.blob(t)

			wfi := WaitForInterrupt
			halted := make(chan struct{})
			WaitForInterrupt = func() {
				close(halted)
				select {}
			}

			returned := make(chan struct{})
			go func() {
				defer close(returned)
				FwPlatformInit(BootArgs{FDTAddr: 0x82200000}, blob)
			}()

			select {
			case <-halted:
			case <-returned:
				t.Fatal("FwPlatformInit returned")
			case <-time.After(5 * time.Second):
				t.Fatal("FwPlatformInit did not halt")
			}
			WaitForInterrupt = wfi

			require.Never(t, func() bool {
				select {
				case <-returned:
					return true
				default:
					return false
				}
			}, 200*time.Millisecond, 10*time.Millisecond)
		})
	}
}
