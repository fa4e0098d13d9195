package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/packetcap/iosource/program"
)

var compileCmd = &cobra.Command{
	Use:   "compile <filter expression>",
	Short: "Compile a filter expression and print the BPF program",
	Long: `Compile a tcpdump-style filter expression without opening a capture and print the program,
as assembly (default), as C array initializers (like tcpdump -dd) or as decimal numbers (like tcpdump -ddd).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCompile,
}

func init() {
	compileCmd.Flags().String("linktype", "ethernet", "link type: ethernet, null, raw or a DLT number")
	compileCmd.Flags().Int("snaplen", 262144, "snapshot length the program is compiled for")
	compileCmd.Flags().String("netmask", "", "netmask for 'ip broadcast', dotted quad or number")
	compileCmd.Flags().Bool("optimize", true, "optimize the program")
	compileCmd.Flags().StringP("format", "f", "asm", "output format: asm, c or decimal")
}

func runCompile(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	lt, _ := flags.GetString("linktype")
	linkType, err := parseLinkType(lt)
	if err != nil {
		return err
	}
	nm, _ := flags.GetString("netmask")
	netmask, err := parseNetmask(nm)
	if err != nil {
		return err
	}
	snaplen, _ := flags.GetInt("snaplen")
	optimize, _ := flags.GetBool("optimize")
	format, _ := flags.GetString("format")

	c := program.NewCompiler()
	defer c.Release()
	if err := c.CompileUnbound(snaplen, linkType, strings.Join(args, " "), netmask, optimize); err != nil {
		return err
	}
	p, _ := c.Program()
	return printProgram(cmd.OutOrStdout(), p, format)
}

func printProgram(w io.Writer, p *program.Program, format string) error {
	switch format {
	case "asm":
		_, err := io.WriteString(w, p.String())
		return err
	case "c":
		for _, ins := range p.Instructions() {
			if _, err := fmt.Fprintf(w, "{ 0x%x, %d, %d, 0x%08x },\n", ins.Op, ins.Jt, ins.Jf, ins.K); err != nil {
				return err
			}
		}
		return nil
	case "decimal":
		if _, err := fmt.Fprintf(w, "%d\n", p.Len()); err != nil {
			return err
		}
		for _, ins := range p.Instructions() {
			if _, err := fmt.Fprintf(w, "%d %d %d %d\n", ins.Op, ins.Jt, ins.Jf, ins.K); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
